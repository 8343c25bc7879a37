package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/clinicdesk/internal/auth"
	"github.com/dukerupert/clinicdesk/internal/guard"
	"github.com/dukerupert/clinicdesk/internal/model"
)

// SessionReader is the read side of the session store.
type SessionReader interface {
	Loading() bool
	Get() *model.Session
}

// RequireRole gates a route on the desk session. While the session is still
// being restored the route answers 503 so the caller shows a loading state
// instead of being bounced to the login page. With no roles any signed-in
// session passes. HTMX-aware: sets HX-Redirect instead of a 303 for HTMX
// requests.
func RequireRole(sessions SessionReader, roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.Get()
			switch guard.Decide(sessions.Loading(), sess, roles...) {
			case guard.Loading:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]any{"loading": true})
			case guard.RedirectLogin:
				redirect(w, r, "/login")
			case guard.RedirectHome:
				redirect(w, r, "/")
			case guard.Allow:
				ctx := auth.WithSession(r.Context(), *sess)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", to)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
