package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/store"
	"github.com/dukerupert/clinicdesk/internal/websocket"
)

type SettingsHandler struct {
	settingsStore *store.SettingsStore
	hub           *websocket.Hub
	logger        zerolog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, hub *websocket.Hub, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{settingsStore: ss, hub: hub, logger: logger}
}

func (h *SettingsHandler) GetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := h.settingsStore.Theme()
	if err != nil {
		h.logger.Error().Err(err).Msg("read theme")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get theme"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": theme})
}

func (h *SettingsHandler) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.settingsStore.SetTheme(req.Theme); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.ThemeChanged(req.Theme))
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
}
