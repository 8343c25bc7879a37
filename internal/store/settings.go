package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// ErrNotFound is returned when a setting has never been written.
var ErrNotFound = errors.New("setting not found")

// Keys of the desk's persisted client state.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTheme        = "theme"
	keyTokenSalt    = "token_salt"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (s *SettingsStore) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete setting %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Theme returns the persisted theme preference, light when unset.
func (s *SettingsStore) Theme() (string, error) {
	v, err := s.Get(KeyTheme)
	if errors.Is(err, ErrNotFound) {
		return model.ThemeLight, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *SettingsStore) SetTheme(theme string) error {
	if theme != model.ThemeLight && theme != model.ThemeDark {
		return fmt.Errorf("invalid theme %q", theme)
	}
	return s.Set(KeyTheme, theme)
}
