// Package auth carries the signed-in desk session through request contexts.
package auth

import (
	"context"

	"github.com/dukerupert/clinicdesk/internal/model"
)

type contextKey struct{}

// WithSession returns ctx carrying a copy of sess.
func WithSession(ctx context.Context, sess model.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

func FromContext(ctx context.Context) (model.Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(model.Session)
	return sess, ok
}

func Role(ctx context.Context) model.Role {
	sess, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return sess.Role
}

func IsDoctor(ctx context.Context) bool {
	return Role(ctx) == model.RoleDoctor
}

func IsCounter(ctx context.Context) bool {
	return Role(ctx) == model.RoleCounter
}
