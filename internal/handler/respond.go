package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/session"
	"github.com/dukerupert/clinicdesk/internal/validate"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports a failed user action as {"error": message}. The message
// is the validation text, the clinic API's own message, or fallback.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
		return
	}
	writeJSON(w, statusFor(err), map[string]string{"error": api.Message(err, fallback)})
}

func statusFor(err error) int {
	var apiErr *api.Error
	switch {
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, session.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, api.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrTransient):
		return http.StatusBadGateway
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return apiErr.Status
	case errors.Is(err, api.ErrRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeForm reads a JSON body into form and validates it.
func decodeForm(w http.ResponseWriter, r *http.Request, form any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(form); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	if err := validate.Struct(form); err != nil {
		writeError(w, err, "invalid input")
		return false
	}
	return true
}
