package gql

import (
	"context"

	"github.com/savaki/socialauth/internal/auth"
)

// Me resolves the me query
func (r *Resolver) Me(ctx context.Context) *ProfileResolver {
	session, ok := auth.SessionFromContext(ctx)
	if !ok || session.Profile == nil {
		return nil
	}
	return newProfileResolver(*session.Profile)
}

// Session resolves the session query
func (r *Resolver) Session(ctx context.Context) *SessionResolver {
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return &SessionResolver{session: *session}
}
