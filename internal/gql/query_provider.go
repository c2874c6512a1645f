package gql

import "github.com/savaki/socialauth/internal/auth"

// ProviderResolver resolves the Provider GraphQL type
type ProviderResolver struct {
	provider auth.Provider
}

func (r *ProviderResolver) Type() string { return r.provider.GetProviderType() }

func (r *ProviderResolver) SupportsStatusUpdate() bool {
	return r.provider.Capabilities().Has(auth.CapStatusUpdate)
}

func (r *ProviderResolver) SupportsContacts() bool {
	return r.provider.Capabilities().Has(auth.CapContacts)
}

// Provider resolves the provider query
func (r *Resolver) Provider() (*ProviderResolver, error) {
	provider, err := r.provider()
	if err != nil {
		return nil, err
	}
	return &ProviderResolver{provider: provider}, nil
}
