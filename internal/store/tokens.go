package store

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// TokenStore persists the access and refresh bearer tokens. Only the session
// store writes through it.
type TokenStore struct {
	settings *SettingsStore
	sealer   *sealer
}

// NewTokenStore returns a token store over settings. A non-empty passphrase
// seals tokens at rest; the Argon2id salt is created on first use and kept in
// the settings table.
func NewTokenStore(settings *SettingsStore, passphrase string) (*TokenStore, error) {
	ts := &TokenStore{settings: settings}
	if passphrase == "" {
		return ts, nil
	}

	salt, err := ts.loadSalt()
	if err != nil {
		return nil, err
	}
	s, err := newSealer(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	ts.sealer = s
	return ts, nil
}

func (ts *TokenStore) loadSalt() ([]byte, error) {
	encoded, err := ts.settings.Get(keyTokenSalt)
	if err == nil {
		salt, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode token salt: %w", err)
		}
		return salt, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := ts.settings.Set(keyTokenSalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, err
	}
	return salt, nil
}

// Tokens returns the persisted tokens. Missing tokens are returned as empty
// strings without error.
func (ts *TokenStore) Tokens() (access, refresh string, err error) {
	access, err = ts.get(KeyAccessToken)
	if err != nil {
		return "", "", err
	}
	refresh, err = ts.get(KeyRefreshToken)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (ts *TokenStore) get(key string) (string, error) {
	v, err := ts.settings.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if ts.sealer == nil {
		return v, nil
	}
	return ts.sealer.open(v)
}

// SaveTokens persists both tokens. An empty refresh token removes the stored one.
func (ts *TokenStore) SaveTokens(access, refresh string) error {
	if access == "" {
		return fmt.Errorf("save tokens: empty access token")
	}
	if err := ts.put(KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return ts.settings.Delete(KeyRefreshToken)
	}
	return ts.put(KeyRefreshToken, refresh)
}

func (ts *TokenStore) put(key, value string) error {
	if ts.sealer != nil {
		sealed, err := ts.sealer.seal(value)
		if err != nil {
			return err
		}
		value = sealed
	}
	return ts.settings.Set(key, value)
}

// ClearTokens removes both tokens. Clearing absent tokens is not an error.
func (ts *TokenStore) ClearTokens() error {
	return ts.settings.Delete(KeyAccessToken, KeyRefreshToken)
}
