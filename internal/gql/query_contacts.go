package gql

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/auth"
)

// ContactsResolver resolves the Contacts GraphQL type
type ContactsResolver struct {
	supported bool
	contacts  []*ProfileResolver
}

func (r *ContactsResolver) Supported() bool              { return r.supported }
func (r *ContactsResolver) Contacts() []*ProfileResolver { return r.contacts }

// Contacts resolves the contacts query. Providers without contact support
// answer with supported=false and an empty list.
func (r *Resolver) Contacts(ctx context.Context) (*ContactsResolver, error) {
	session, err := authenticated(ctx, "contacts")
	if err != nil {
		return nil, err
	}

	provider, err := r.provider()
	if err != nil {
		return nil, err
	}

	contacts, err := provider.GetContactList(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("session_id", session.ID).
		Int("count", len(contacts)).
		Msg("Contacts listed")

	resolvers := make([]*ProfileResolver, 0, len(contacts))
	for _, contact := range contacts {
		resolvers = append(resolvers, newProfileResolver(contact))
	}

	return &ContactsResolver{
		supported: provider.Capabilities().Has(auth.CapContacts),
		contacts:  resolvers,
	}, nil
}
