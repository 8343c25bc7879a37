package handler

import (
	"net/http"

	"github.com/dukerupert/clinicdesk/internal/auth"
)

// Dashboard returns everything a role's landing view needs in one response:
// the signed-in session and the current queue.
func (h *VisitHandler) Dashboard(view string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := auth.FromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"view":    view,
			"session": sess,
			"queue":   h.queueState(),
		})
	}
}
