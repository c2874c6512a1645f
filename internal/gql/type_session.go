package gql

import (
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/savaki/socialauth/internal/models"
)

// SessionResolver resolves the Session GraphQL type. Tokens are never exposed.
type SessionResolver struct {
	session models.Session
}

func (r *SessionResolver) ID() graphql.ID      { return graphql.ID(r.session.ID) }
func (r *SessionResolver) Provider() string    { return r.session.Provider }
func (r *SessionResolver) Stage() string       { return string(r.session.Stage) }
func (r *SessionResolver) Authenticated() bool { return r.session.IsAuthenticated() }
func (r *SessionResolver) CreatedAt() DateTime { return NewDateTime(r.session.CreatedAt) }

// Expiry resolves the access token expiry
func (r *SessionResolver) Expiry() *DateTime {
	if r.session.Expiry.IsZero() {
		return nil
	}
	return NewDateTimePtr(&r.session.Expiry)
}
