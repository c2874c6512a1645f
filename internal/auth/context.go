package auth

import (
	"context"

	"github.com/savaki/socialauth/internal/models"
)

type sessionContextKey struct{}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext returns the session stored by RequireAuth, if any.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*models.Session)
	return session, ok && session != nil
}
