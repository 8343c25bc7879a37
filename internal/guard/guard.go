// Package guard decides whether a route may render for the current session.
package guard

import "github.com/dukerupert/clinicdesk/internal/model"

// Decision is the outcome of a route authorization check.
type Decision int

const (
	// Loading means the session is still being restored; render a loading
	// state, not a redirect.
	Loading Decision = iota
	Allow
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decide authorizes a route. With no roles any logged-in session is allowed.
func Decide(loading bool, sess *model.Session, roles ...model.Role) Decision {
	switch {
	case loading:
		return Loading
	case sess == nil:
		return RedirectLogin
	case len(roles) > 0 && !sess.HasRole(roles...):
		return RedirectHome
	default:
		return Allow
	}
}
