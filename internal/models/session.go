package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// Stage tracks how far a session has progressed through the login flow.
type Stage string

const (
	StageUnauthenticated Stage = "UNAUTHENTICATED"
	StageRedirectIssued  Stage = "REDIRECT_ISSUED"
	StageAuthenticated   Stage = "AUTHENTICATED"
)

// Session carries the state shared between the redirect step and the
// callback step of one login, and the access token once it is issued.
type Session struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	State       string    `json:"state"`
	Stage       Stage     `json:"stage"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	AccessToken string    `json:"access_token,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
	Profile     *Profile  `json:"profile,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSession creates an unauthenticated session with a fresh id and CSRF state.
func NewSession(provider string) (*Session, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &Session{
		ID:        ksuid.New().String(),
		Provider:  provider,
		State:     state,
		Stage:     StageUnauthenticated,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsAuthenticated reports whether the session holds a usable access token.
func (s *Session) IsAuthenticated() bool {
	if s == nil || s.Stage != StageAuthenticated || s.AccessToken == "" {
		return false
	}
	return s.Expiry.IsZero() || time.Now().Before(s.Expiry)
}

// generateState creates a random state value for CSRF protection
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
