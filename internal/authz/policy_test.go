package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyPolicy struct{}

func (denyPolicy) Name() string { return "deny" }
func (denyPolicy) Authorize(ctx context.Context, profile Profile) error {
	return ErrAccessDenied
}

func TestEmailPolicy(t *testing.T) {
	policy := &EmailPolicy{AllowedEmail: "Owner@Example.com"}

	assert.NoError(t, policy.Authorize(context.Background(), Profile{Email: "owner@example.com"}))

	err := policy.Authorize(context.Background(), Profile{Email: "someone@example.com"})
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestAuthorizer(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled allows everything", func(t *testing.T) {
		a := NewAuthorizer(false, denyPolicy{})
		assert.NoError(t, a.Authorize(ctx, Profile{}))
	})

	t.Run("nil authorizer allows everything", func(t *testing.T) {
		var a *Authorizer
		assert.NoError(t, a.Authorize(ctx, Profile{}))
		assert.Equal(t, 0, a.Policies())
	})

	t.Run("first denial wins", func(t *testing.T) {
		a := NewAuthorizer(true, &EmailPolicy{AllowedEmail: "a@b.com"}, denyPolicy{})
		err := a.Authorize(ctx, Profile{Email: "a@b.com"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deny")
		assert.True(t, errors.Is(err, ErrAccessDenied))
	})
}

func TestRegoPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("no domains allows any email", func(t *testing.T) {
		policy, err := NewRegoPolicy(ctx, nil)
		require.NoError(t, err)

		assert.NoError(t, policy.Authorize(ctx, Profile{Email: "a@b.com"}))

		err = policy.Authorize(ctx, Profile{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAccessDenied))
		assert.Contains(t, err.Error(), "profile has no email")
	})

	t.Run("domain allow list", func(t *testing.T) {
		policy, err := NewRegoPolicy(ctx, []string{"example.com", " "})
		require.NoError(t, err)

		assert.NoError(t, policy.Authorize(ctx, Profile{Email: "Jane@Example.com"}))

		err = policy.Authorize(ctx, Profile{Email: "jane@evil.com"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAccessDenied))
		assert.Contains(t, err.Error(), "jane@evil.com")
	})
}
