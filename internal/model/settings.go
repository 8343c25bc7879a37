package model

import "time"

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Theme preference values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)
