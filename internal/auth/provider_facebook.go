package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	errs "github.com/savaki/socialauth/internal/errors"
	"github.com/savaki/socialauth/internal/models"
	"golang.org/x/oauth2"
)

const FacebookProviderType = "facebook"

// Facebook Graph API defaults.
const (
	FacebookAuthorizeURL = "https://graph.facebook.com/oauth/authorize"
	FacebookTokenURL     = "https://graph.facebook.com/oauth/access_token"
	FacebookProfileURL   = "https://graph.facebook.com/me"
	FacebookStatusURL    = "https://graph.facebook.com/me/feed"
)

// FacebookPermissions are the extended permissions requested when none are configured.
var FacebookPermissions = []string{"publish_stream", "email", "user_birthday", "user_location"}

// FacebookConfig holds the consumer credentials and Graph API endpoints.
type FacebookConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AuthorizeURL   string
	TokenURL       string
	ProfileURL     string
	StatusURL      string
	Permissions    []string
	HTTP           HTTPOptions
}

// FacebookProvider implements Provider against the Facebook Graph API.
// It is immutable after construction and safe for concurrent use.
type FacebookProvider struct {
	clientID     string
	clientSecret string
	authorizeURL string
	tokenURL     string
	profileURL   string
	statusURL    string
	permissions  []string
	http         *httpCaller
}

// NewFacebookProvider validates cfg and fills in the Graph API defaults.
func NewFacebookProvider(cfg FacebookConfig) (*FacebookProvider, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errs.Newf(errs.KindInvalidRequest, "facebook", "consumer key and secret are required")
	}

	permissions := cfg.Permissions
	if len(permissions) == 0 {
		permissions = FacebookPermissions
	}

	return &FacebookProvider{
		clientID:     cfg.ConsumerKey,
		clientSecret: cfg.ConsumerSecret,
		authorizeURL: orDefault(cfg.AuthorizeURL, FacebookAuthorizeURL),
		tokenURL:     orDefault(cfg.TokenURL, FacebookTokenURL),
		profileURL:   orDefault(cfg.ProfileURL, FacebookProfileURL),
		statusURL:    orDefault(cfg.StatusURL, FacebookStatusURL),
		permissions:  append([]string(nil), permissions...),
		http:         newHTTPCaller(cfg.HTTP),
	}, nil
}

// GetProviderType returns "facebook".
func (p *FacebookProvider) GetProviderType() string {
	return FacebookProviderType
}

// Capabilities reports status updates only; Facebook does not expose contacts.
func (p *FacebookProvider) Capabilities() Capability {
	return CapStatusUpdate
}

// GetLoginRedirectURL returns the Facebook dialog URL asking for the
// configured permissions, comma separated as the Graph API expects.
func (p *FacebookProvider) GetLoginRedirectURL(session *models.Session, redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", errs.New(errs.KindInvalidRequest, "login_redirect", errs.ErrRedirectURIRequired)
	}

	config := oauth2.Config{
		ClientID:    p.clientID,
		RedirectURL: redirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: p.authorizeURL},
	}
	authURL := config.AuthCodeURL(session.State,
		oauth2.SetAuthURLParam("display", "page"),
		oauth2.SetAuthURLParam("scope", strings.Join(p.permissions, ",")),
	)

	session.Provider = FacebookProviderType
	session.RedirectURI = redirectURI
	session.Stage = models.StageRedirectIssued
	return authURL, nil
}

// VerifyResponse exchanges the callback code for an access token and loads
// the user's profile. The session is only updated when both steps succeed.
func (p *FacebookProvider) VerifyResponse(ctx context.Context, session *models.Session, req Request) (*models.Profile, error) {
	logger := zerolog.Ctx(ctx)

	if reason := req.FormValue("error"); reason != "" {
		return nil, errs.Newf(errs.KindInvalidRequest, "verify", "provider returned %s: %s", reason, req.FormValue("error_description"))
	}

	code := req.FormValue("code")
	if code == "" {
		return nil, errs.New(errs.KindInvalidRequest, "verify", errs.ErrCodeMissing)
	}

	token, err := p.exchange(ctx, session.RedirectURI, code)
	if err != nil {
		return nil, err
	}

	profile, err := p.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	session.AccessToken = token.AccessToken
	session.Expiry = token.Expiry
	session.Profile = profile
	session.Stage = models.StageAuthenticated

	logger.Info().
		Str("provider", FacebookProviderType).
		Str("validated_id", profile.ValidatedID).
		Time("expiry", token.Expiry).
		Msg("Facebook login verified")

	return profile, nil
}

func (p *FacebookProvider) exchange(ctx context.Context, redirectURI, code string) (*oauth2.Token, error) {
	exchangeURL, err := withQuery(p.tokenURL, url.Values{
		"client_id":     {p.clientID},
		"redirect_uri":  {redirectURI},
		"client_secret": {p.clientSecret},
		"code":          {code},
	})
	if err != nil {
		return nil, errs.New(errs.KindInvalidRequest, "exchange", err)
	}

	body, err := p.http.get(ctx, "exchange", exchangeURL)
	if err != nil {
		return nil, err
	}

	accessToken, expires, err := ParseTokenResponse(body)
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}
	// expires of 0 means the token does not expire
	if expires > 0 {
		token.Expiry = time.Now().Add(time.Duration(expires) * time.Second)
	}
	return token, nil
}

// ParseTokenResponse extracts the access token and its lifetime in seconds
// from a token endpoint body. Both the legacy "access_token=...&expires=..."
// form and the JSON form are accepted. An expires of 0 marks a token
// without a fixed lifetime; negative values are malformed.
func ParseTokenResponse(body []byte) (accessToken string, expires int, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseJSONTokenResponse(trimmed)
	}
	return parsePairTokenResponse(string(trimmed))
}

func parsePairTokenResponse(body string) (string, int, error) {
	var (
		accessToken string
		expires     *int
	)

	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		kv := strings.Split(pair, "=")
		if len(kv) != 2 {
			return "", 0, errs.Wrapf(errs.KindMalformedResponse, "exchange", errs.ErrUnexpectedAuthResponse, "pair %q", pair)
		}

		// PathUnescape keeps a literal '+' in the token
		value, err := url.PathUnescape(kv[1])
		if err != nil {
			return "", 0, errs.Wrapf(errs.KindMalformedResponse, "exchange", err, "pair %q", pair)
		}

		switch kv[0] {
		case "access_token":
			accessToken = value
		case "expires", "expires_in":
			n, err := strconv.Atoi(value)
			if err != nil {
				return "", 0, errs.Wrapf(errs.KindMalformedResponse, "exchange", err, "expires %q", value)
			}
			if n < 0 {
				return "", 0, errs.Newf(errs.KindMalformedResponse, "exchange", "negative expires %d", n)
			}
			expires = &n
		}
	}

	if accessToken == "" || expires == nil {
		return "", 0, errs.New(errs.KindIncompleteResponse, "exchange", errs.ErrTokenNotFound)
	}
	return accessToken, *expires, nil
}

func parseJSONTokenResponse(body []byte) (string, int, error) {
	var resp struct {
		AccessToken string       `json:"access_token"`
		ExpiresIn   *json.Number `json:"expires_in"`
		Expires     *json.Number `json:"expires"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, errs.Wrapf(errs.KindMalformedResponse, "exchange", err, "token response")
	}

	lifetime := resp.ExpiresIn
	if lifetime == nil {
		lifetime = resp.Expires
	}
	if resp.AccessToken == "" || lifetime == nil {
		return "", 0, errs.New(errs.KindIncompleteResponse, "exchange", errs.ErrTokenNotFound)
	}

	n, err := lifetime.Int64()
	if err != nil {
		return "", 0, errs.Wrapf(errs.KindMalformedResponse, "exchange", err, "expires %q", lifetime.String())
	}
	if n < 0 {
		return "", 0, errs.Newf(errs.KindMalformedResponse, "exchange", "negative expires %d", n)
	}
	return resp.AccessToken, int(n), nil
}

// facebookProfile mirrors the Graph API "me" payload. Pointers distinguish
// absent fields from empty ones.
type facebookProfile struct {
	ID        *string `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Locale    *string `json:"locale"`
	Birthday  *string `json:"birthday"`
	Gender    *string `json:"gender"`
	Location  *struct {
		Name string `json:"name"`
	} `json:"location"`
}

func (p *FacebookProvider) fetchProfile(ctx context.Context, accessToken string) (*models.Profile, error) {
	profileURL, err := withQuery(p.profileURL, url.Values{"access_token": {accessToken}})
	if err != nil {
		return nil, errs.New(errs.KindInvalidRequest, "profile", err)
	}

	body, err := p.http.get(ctx, "profile", profileURL)
	if err != nil {
		return nil, err
	}

	return ParseFacebookProfile(body)
}

// ParseFacebookProfile maps a Graph API profile payload onto a Profile.
// id, first_name, last_name, email and locale are required.
func ParseFacebookProfile(body []byte) (*models.Profile, error) {
	var fb facebookProfile
	if err := json.Unmarshal(body, &fb); err != nil {
		return nil, errs.Wrapf(errs.KindMalformedResponse, "profile", err, "profile json")
	}

	required := []struct {
		name  string
		value *string
	}{
		{"id", fb.ID},
		{"first_name", fb.FirstName},
		{"last_name", fb.LastName},
		{"email", fb.Email},
		{"locale", fb.Locale},
	}
	for _, field := range required {
		if field.value == nil {
			return nil, errs.Newf(errs.KindMalformedResponse, "profile", "profile field %q missing", field.name)
		}
	}
	if strings.TrimSpace(*fb.ID) == "" {
		return nil, errs.Newf(errs.KindMalformedResponse, "profile", "profile field %q empty", "id")
	}

	profile := &models.Profile{
		ValidatedID: *fb.ID,
		ProviderID:  FacebookProviderType,
		FirstName:   *fb.FirstName,
		LastName:    *fb.LastName,
		Email:       *fb.Email,
	}
	if fb.Name != nil {
		profile.FullName = *fb.Name
	}
	if fb.Location != nil {
		profile.Location = fb.Location.Name
	}
	if fb.Birthday != nil {
		profile.DOB = *fb.Birthday
	}
	if fb.Gender != nil {
		profile.Gender = *fb.Gender
	}
	profile.SetLocale(*fb.Locale)

	return profile, nil
}

// UpdateStatus posts message to the user's feed. A non-200 answer is
// returned as a rejected error.
func (p *FacebookProvider) UpdateStatus(ctx context.Context, session *models.Session, message string) error {
	logger := zerolog.Ctx(ctx)

	if !session.IsAuthenticated() {
		return errs.New(errs.KindInvalidRequest, "update_status", errs.ErrNotAuthenticated)
	}
	if strings.TrimSpace(message) == "" {
		return errs.New(errs.KindInvalidRequest, "update_status", errs.ErrMessageRequired)
	}

	status, err := p.http.postForm(ctx, "update_status", p.statusURL, url.Values{
		"access_token": {session.AccessToken},
		"message":      {message},
	})
	if err != nil {
		logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to post status")
		return err
	}

	if status != http.StatusOK {
		logger.Warn().
			Int("status_code", status).
			Str("session_id", session.ID).
			Msg("Status not updated")
		return errs.Wrapf(errs.KindRejected, "update_status", errs.ErrStatusNotUpdated, "status %d", status)
	}

	logger.Info().Str("session_id", session.ID).Msg("Status updated")
	return nil
}

// GetContactList always returns an empty list: Facebook does not share contacts.
func (p *FacebookProvider) GetContactList(ctx context.Context, session *models.Session) ([]models.Profile, error) {
	return []models.Profile{}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
