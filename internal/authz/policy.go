package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAccessDenied is wrapped by every policy denial.
var ErrAccessDenied = errors.New("access denied")

// Profile represents user information needed for authorization.
// This mirrors models.Profile but keeps packages decoupled.
type Profile struct {
	ID       string
	Provider string
	Name     string
	Email    string
}

// Policy defines an authorization rule that can allow or deny access.
type Policy interface {
	// Authorize returns nil if the user is authorized, or an error if denied.
	Authorize(ctx context.Context, profile Profile) error
	// Name returns a human-readable name for this policy.
	Name() string
}

// EmailPolicy restricts access to a single email address.
type EmailPolicy struct {
	AllowedEmail string
}

// Name returns the policy name.
func (p *EmailPolicy) Name() string {
	return "EmailRestriction"
}

// Authorize compares the profile email with the allowed one, ignoring case.
func (p *EmailPolicy) Authorize(ctx context.Context, profile Profile) error {
	if !strings.EqualFold(strings.TrimSpace(profile.Email), strings.TrimSpace(p.AllowedEmail)) {
		return fmt.Errorf("%w: email %s is not authorized", ErrAccessDenied, profile.Email)
	}
	return nil
}

// Authorizer manages a collection of authorization policies.
type Authorizer struct {
	policies []Policy
	enabled  bool
}

// NewAuthorizer creates a new authorizer with the given policies.
func NewAuthorizer(enabled bool, policies ...Policy) *Authorizer {
	return &Authorizer{
		policies: policies,
		enabled:  enabled,
	}
}

// Authorize runs all policies and returns an error if any policy denies access.
func (a *Authorizer) Authorize(ctx context.Context, profile Profile) error {
	if a == nil || !a.enabled {
		return nil
	}

	for _, policy := range a.policies {
		if err := policy.Authorize(ctx, profile); err != nil {
			return fmt.Errorf("authorization policy %s failed: %w", policy.Name(), err)
		}
	}
	return nil
}

// Policies returns the number of configured policies.
func (a *Authorizer) Policies() int {
	if a == nil {
		return 0
	}
	return len(a.policies)
}
