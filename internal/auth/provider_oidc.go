package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	errs "github.com/savaki/socialauth/internal/errors"
	"github.com/savaki/socialauth/internal/models"
	"golang.org/x/oauth2"
)

// Issuer describes an OpenID Connect identity provider.
type Issuer interface {
	// GetIssuerURL returns the issuer used for discovery and token verification.
	GetIssuerURL() string

	// GetLogoutURL returns the provider-specific logout URL.
	GetLogoutURL(clientID, returnTo string) string

	// GetProviderType returns the provider type identifier.
	GetProviderType() string
}

// Auth0Issuer is an Auth0 tenant.
type Auth0Issuer struct {
	Domain string // e.g. "tenant.us.auth0.com"
}

func (i *Auth0Issuer) GetIssuerURL() string    { return "https://" + i.Domain + "/" }
func (i *Auth0Issuer) GetProviderType() string { return "auth0" }

// GetLogoutURL ends the Auth0 session too, not only the local one.
func (i *Auth0Issuer) GetLogoutURL(clientID, returnTo string) string {
	params := url.Values{"client_id": {clientID}, "returnTo": {returnTo}}
	return fmt.Sprintf("https://%s/v2/logout?%s", i.Domain, params.Encode())
}

// GoogleCIAMIssuer is Google Cloud Identity Platform. Browser logins are issued
// by accounts.google.com, so that issuer is used instead of securetoken.google.com.
type GoogleCIAMIssuer struct {
	ProjectID string
}

func (i *GoogleCIAMIssuer) GetIssuerURL() string    { return "https://accounts.google.com" }
func (i *GoogleCIAMIssuer) GetProviderType() string { return "google-ciam" }

// GetLogoutURL returns returnTo; Google has no provider-level logout.
func (i *GoogleCIAMIssuer) GetLogoutURL(clientID, returnTo string) string { return returnTo }

// Endpoint pins the Google OAuth endpoints.
func (i *GoogleCIAMIssuer) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
}

// OIDCConfig configures an OIDCProvider.
type OIDCConfig struct {
	Issuer       Issuer
	ClientID     string
	ClientSecret string
	Scopes       []string // defaults to openid, profile, email
	HTTP         HTTPOptions
}

// OIDCProvider implements Provider for any OpenID Connect issuer. Identity
// comes from the verified ID token; status updates are not supported.
type OIDCProvider struct {
	issuer   Issuer
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
	http     *httpCaller
}

// NewOIDCProvider discovers the issuer's endpoints and keys.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	logger := zerolog.Ctx(ctx)
	caller := newHTTPCaller(cfg.HTTP)
	issuerURL := cfg.Issuer.GetIssuerURL()

	logger.Info().
		Str("provider_type", cfg.Issuer.GetProviderType()).
		Str("issuer_url", issuerURL).
		Msg("Initializing OIDC provider")

	discovered, err := oidc.NewProvider(oidc.ClientContext(ctx, caller.client), issuerURL)
	if err != nil {
		return nil, errs.Wrapf(errs.KindTransport, "discovery", err, "issuer %s", issuerURL)
	}

	endpoint := discovered.Endpoint()
	if pinned, ok := cfg.Issuer.(interface{ Endpoint() oauth2.Endpoint }); ok {
		endpoint = pinned.Endpoint()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCProvider{
		issuer: cfg.Issuer,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		http:     caller,
	}, nil
}

func (p *OIDCProvider) GetProviderType() string  { return p.issuer.GetProviderType() }
func (p *OIDCProvider) Capabilities() Capability { return 0 }

// GetLogoutURL returns the issuer logout URL for returnTo.
func (p *OIDCProvider) GetLogoutURL(returnTo string) string {
	return p.issuer.GetLogoutURL(p.config.ClientID, returnTo)
}

// GetLoginRedirectURL returns the issuer's authorization URL.
func (p *OIDCProvider) GetLoginRedirectURL(session *models.Session, redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", errs.New(errs.KindInvalidRequest, "login_redirect", errs.ErrRedirectURIRequired)
	}

	config := p.config
	config.RedirectURL = redirectURI

	session.Provider = p.GetProviderType()
	session.RedirectURI = redirectURI
	session.Stage = models.StageRedirectIssued
	return config.AuthCodeURL(session.State), nil
}

// VerifyResponse exchanges the code, verifies the ID token and normalizes its claims.
func (p *OIDCProvider) VerifyResponse(ctx context.Context, session *models.Session, req Request) (*models.Profile, error) {
	if reason := req.FormValue("error"); reason != "" {
		return nil, errs.Newf(errs.KindInvalidRequest, "verify", "provider returned %s: %s", reason, req.FormValue("error_description"))
	}

	code := req.FormValue("code")
	if code == "" {
		return nil, errs.New(errs.KindInvalidRequest, "verify", errs.ErrCodeMissing)
	}

	config := p.config
	config.RedirectURL = session.RedirectURI

	clientCtx := context.WithValue(ctx, oauth2.HTTPClient, p.http.client)
	token, err := config.Exchange(clientCtx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, errs.New(errs.KindRejected, "exchange", err)
		}
		return nil, errs.New(errs.KindTransport, "exchange", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errs.Newf(errs.KindIncompleteResponse, "exchange", "no id_token in token response")
	}

	idToken, err := p.verifier.Verify(oidc.ClientContext(ctx, p.http.client), rawIDToken)
	if err != nil {
		return nil, errs.Wrapf(errs.KindMalformedResponse, "verify", err, "id token")
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errs.Wrapf(errs.KindMalformedResponse, "verify", err, "id token claims")
	}

	profile := claims.Profile(p.GetProviderType())
	session.AccessToken = token.AccessToken
	session.Expiry = token.Expiry
	session.Profile = profile
	session.Stage = models.StageAuthenticated

	zerolog.Ctx(ctx).Info().
		Str("provider", p.GetProviderType()).
		Str("issuer", idToken.Issuer).
		Str("subject", idToken.Subject).
		Msg("ID token verified successfully")

	return profile, nil
}

// UpdateStatus is not offered by OIDC issuers.
func (p *OIDCProvider) UpdateStatus(ctx context.Context, session *models.Session, message string) error {
	return errs.Newf(errs.KindUnsupported, "update_status", "%s does not support status updates", p.GetProviderType())
}

// GetContactList returns an empty list.
func (p *OIDCProvider) GetContactList(ctx context.Context, session *models.Session) ([]models.Profile, error) {
	return []models.Profile{}, nil
}

// OIDCClaims are the standard claims mapped onto a Profile.
type OIDCClaims struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Locale     string `json:"locale"`
	Gender     string `json:"gender"`
	Birthdate  string `json:"birthdate"`
}

// Profile normalizes the claims for providerType.
func (c OIDCClaims) Profile(providerType string) *models.Profile {
	profile := &models.Profile{
		ValidatedID: c.Sub,
		ProviderID:  providerType,
		FirstName:   c.GivenName,
		LastName:    c.FamilyName,
		FullName:    c.Name,
		Email:       c.Email,
		Gender:      c.Gender,
		DOB:         c.Birthdate,
	}
	profile.SetLocale(c.Locale)
	return profile
}
