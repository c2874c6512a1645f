package gql

import (
	"context"
	_ "embed"

	"github.com/graph-gophers/graphql-go"
	"github.com/savaki/socialauth/internal/auth"
	errs "github.com/savaki/socialauth/internal/errors"
	"github.com/savaki/socialauth/internal/models"
	"go.uber.org/dig"
)

//go:embed schema.graphqls
var schemaString string

type Config struct {
	dig.In

	Template *auth.Template
}

// Resolver is the root GraphQL resolver
type Resolver struct {
	template *auth.Template
}

// NewResolver creates a new root resolver with the required dependencies
func NewResolver(config Config) *Resolver {
	return &Resolver{
		template: config.Template,
	}
}

// NewSchema creates a new GraphQL schema with the root resolver
func NewSchema(resolver *Resolver) (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaString, resolver)
}

// Ok returns "ok" for health checks
func (r *Resolver) Ok() string {
	return "ok"
}

func (r *Resolver) provider() (auth.Provider, error) {
	if r.template == nil || r.template.Provider() == nil {
		return nil, errs.Newf(errs.KindInvalidRequest, "graphql", "no identity provider configured")
	}
	return r.template.Provider(), nil
}

// authenticated returns the session placed on ctx by the auth middleware.
func authenticated(ctx context.Context, op string) (*models.Session, error) {
	session, ok := auth.SessionFromContext(ctx)
	if !ok || !session.IsAuthenticated() {
		return nil, errs.New(errs.KindInvalidRequest, op, errs.ErrNotAuthenticated)
	}
	return session, nil
}
