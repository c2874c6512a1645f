package auth

import (
	"context"

	"github.com/savaki/socialauth/internal/models"
)

// Capability is a bit set of optional operations a Provider supports.
type Capability uint8

const (
	CapStatusUpdate Capability = 1 << iota
	CapContacts
)

// Has reports whether c includes want.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Request is the inbound callback as delivered by the web layer.
// *http.Request satisfies it.
type Request interface {
	FormValue(key string) string
}

// Provider defines the capability set every identity provider offers.
// Providers hold no per-user state: everything tied to one login travels in
// the *models.Session passed to each call.
type Provider interface {
	// GetProviderType returns the provider identifier (e.g., "facebook", "auth0").
	GetProviderType() string

	// Capabilities reports which optional operations are available.
	Capabilities() Capability

	// GetLoginRedirectURL records redirectURI on the session and returns the
	// provider URL the browser should be sent to.
	GetLoginRedirectURL(session *models.Session, redirectURI string) (string, error)

	// VerifyResponse completes the login from the provider callback request.
	// On success the session is authenticated and carries the profile.
	VerifyResponse(ctx context.Context, session *models.Session, req Request) (*models.Profile, error)

	// UpdateStatus posts message on behalf of the authenticated user.
	UpdateStatus(ctx context.Context, session *models.Session, message string) error

	// GetContactList returns the user's contacts. Providers without
	// CapContacts return an empty list and no error.
	GetContactList(ctx context.Context, session *models.Session) ([]models.Profile, error)
}

// LogoutURLer is implemented by providers that expose a provider-level logout.
type LogoutURLer interface {
	GetLogoutURL(returnTo string) string
}

// SessionStore persists login sessions between the redirect and the callback.
// Find returns nil, nil when no session exists for id.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}
