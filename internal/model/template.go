package model

// Template is a saved prescription or medicine entry.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}
