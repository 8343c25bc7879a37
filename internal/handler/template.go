package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/model"
	"github.com/dukerupert/clinicdesk/internal/validate"
)

// TemplateHandler manages the doctor's saved prescription templates.
type TemplateHandler struct {
	client *api.Client
	logger zerolog.Logger
}

func NewTemplateHandler(client *api.Client, logger zerolog.Logger) *TemplateHandler {
	return &TemplateHandler{client: client, logger: logger}
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.client.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err, "Failed to load templates.")
		return
	}
	if templates == nil {
		templates = []model.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form validate.Template
	if !decodeForm(w, r, &form) {
		return
	}
	t, err := h.client.CreateTemplate(r.Context(), strings.TrimSpace(form.Name), strings.TrimSpace(form.ImageURL))
	if err != nil {
		writeError(w, err, "Failed to save template. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.client.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, err, "Failed to delete template.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
