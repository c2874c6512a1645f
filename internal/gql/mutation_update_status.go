package gql

import (
	"context"

	"github.com/rs/zerolog"
)

// UpdateStatus resolves the updateStatus mutation
func (r *Resolver) UpdateStatus(ctx context.Context, args struct{ Message string }) (bool, error) {
	logger := zerolog.Ctx(ctx)

	session, err := authenticated(ctx, "update_status")
	if err != nil {
		return false, err
	}

	provider, err := r.provider()
	if err != nil {
		return false, err
	}

	logger.Info().
		Str("session_id", session.ID).
		Str("provider", provider.GetProviderType()).
		Msg("UpdateStatus mutation called")

	if err := provider.UpdateStatus(ctx, session, args.Message); err != nil {
		return false, err
	}
	return true, nil
}
