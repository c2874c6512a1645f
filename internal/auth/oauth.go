package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/authz"
	errs "github.com/savaki/socialauth/internal/errors"
	"github.com/savaki/socialauth/internal/models"
)

const (
	sessionName  = "auth-session"
	sessionIDKey = "sid"
	profileKey   = "profile" // stores full profile JSON
)

type Authenticator struct {
	template    *Template
	sessions    SessionStore
	cookieStore *sessions.CookieStore
	callbackURL string
	authorizer  *authz.Authorizer // optional authorization policy enforcement
}

type AuthenticatorInput struct {
	Template    *Template
	Sessions    SessionStore
	CallbackURL string
	Authorizer  *authz.Authorizer
	SessionKeys [][]byte
	MaxAge      int  // cookie lifetime in seconds, defaults to 7 days
	IsLocalDev  bool // Set to true for local development (disables Secure cookie flag)
}

func NewAuthenticator(ctx context.Context, input AuthenticatorInput) (*Authenticator, error) {
	logger := zerolog.Ctx(ctx)

	if input.Template == nil || input.Template.Provider() == nil {
		return nil, fmt.Errorf("authenticator requires a provider")
	}
	if input.Sessions == nil {
		return nil, fmt.Errorf("authenticator requires a session store")
	}
	if _, err := url.Parse(input.CallbackURL); err != nil || input.CallbackURL == "" {
		return nil, fmt.Errorf("invalid callback URL %q", input.CallbackURL)
	}

	// Use provided session keys (supports rotation - multiple valid keys)
	// If no keys provided, generate a fallback key (for local dev)
	sessionKeys := input.SessionKeys
	if len(sessionKeys) == 0 {
		logger.Warn().Msg("No session keys provided, generating ephemeral fallback key")
		fallbackKey := make([]byte, 32)
		if _, err := rand.Read(fallbackKey); err != nil {
			return nil, fmt.Errorf("failed to generate fallback session key: %w", err)
		}
		sessionKeys = [][]byte{fallbackKey}
	}

	maxAge := input.MaxAge
	if maxAge <= 0 {
		maxAge = 86400 * 7
	}

	// gorilla/sessions signs with the first key and tries all keys when reading
	cookieStore := sessions.NewCookieStore(sessionKeys...)
	isSecure := !input.IsLocalDev
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info().
		Int("session_key_count", len(sessionKeys)).
		Str("provider_type", input.Template.Provider().GetProviderType()).
		Bool("secure_cookies", isSecure).
		Msg("Authenticator initialized")

	return &Authenticator{
		template:    input.Template,
		sessions:    input.Sessions,
		cookieStore: cookieStore,
		callbackURL: input.CallbackURL,
		authorizer:  input.Authorizer,
	}, nil
}

// Template returns the provider holder.
func (a *Authenticator) Template() *Template {
	return a.template
}

// HandleLogin starts a login session and redirects to the provider.
func (a *Authenticator) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	// NoOp mode - redirect to home
	if a.IsNoOp() {
		logger.Info().Msg("Login not required in NoOp auth mode, redirecting to home")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	provider := a.template.Provider()
	session, err := models.NewSession(provider.GetProviderType())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	authURL, err := provider.GetLoginRedirectURL(session, a.callbackURL)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.sessions.Save(r.Context(), session); err != nil {
		logger.Error().Err(err).Msg("Failed to persist login session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// A stale or undecodable cookie is replaced by a fresh one here
	cookie, _ := a.cookieStore.Get(r, sessionName)
	cookie.Values[sessionIDKey] = session.ID
	delete(cookie.Values, profileKey)
	if err := cookie.Save(r, w); err != nil {
		logger.Error().Err(err).Msg("Failed to save session cookie")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info().
		Str("session_id", session.ID).
		Str("provider", provider.GetProviderType()).
		Msg("Redirecting to OAuth provider for login")
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleCallback completes the login when the provider redirects back.
func (a *Authenticator) HandleCallback(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	// NoOp mode - redirect to home
	if a.IsNoOp() {
		logger.Info().Msg("OAuth callback not used in NoOp auth mode, redirecting to home")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	cookie, err := a.cookieStore.Get(r, sessionName)
	if err != nil {
		logger.Warn().
			Str("error", err.Error()).
			Msg("Session cookie error in callback, redirecting to login")
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	sessionID, _ := cookie.Values[sessionIDKey].(string)
	session, err := a.loadSession(r.Context(), sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load login session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if session == nil || session.Stage != models.StageRedirectIssued {
		logger.Warn().Str("session_id", sessionID).Msg("No pending login for callback, redirecting to login")
		http.Redirect(w, r, "/login", http.StatusTemporaryRedirect)
		return
	}

	receivedState := r.URL.Query().Get("state")
	if subtle.ConstantTimeCompare([]byte(receivedState), []byte(session.State)) != 1 {
		logger.Error().Str("session_id", session.ID).Msg("State mismatch")
		a.writeError(w, r, errs.New(errs.KindInvalidRequest, "callback", errs.ErrStateMismatch))
		return
	}

	provider := a.template.Provider()
	profile, err := provider.VerifyResponse(r.Context(), session, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.authorizer.Authorize(r.Context(), authz.Profile{
		ID:       profile.ValidatedID,
		Provider: profile.ProviderID,
		Name:     profile.FullName,
		Email:    profile.Email,
	}); err != nil {
		logger.Warn().
			Str("validated_id", profile.ValidatedID).
			Str("email", profile.Email).
			Err(err).
			Msg("User authorization failed")
		_ = a.sessions.Delete(r.Context(), session.ID)
		http.Error(w, fmt.Sprintf("Access denied: %v", err), http.StatusForbidden)
		return
	}

	if err := a.sessions.Save(r.Context(), session); err != nil {
		logger.Error().Err(err).Msg("Failed to persist authenticated session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	profileJSON, err := json.Marshal(profile)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal profile")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	cookie.Values[profileKey] = string(profileJSON)
	if err := cookie.Save(r, w); err != nil {
		logger.Error().Err(err).Msg("Failed to save session cookie")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info().
		Str("session_id", session.ID).
		Str("validated_id", profile.ValidatedID).
		Msg("User authenticated successfully")

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleLogout deletes the session and redirects to the provider logout if supported.
func (a *Authenticator) HandleLogout(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	// NoOp mode - redirect to home
	if a.IsNoOp() {
		logger.Info().Msg("Logout not required in NoOp auth mode, redirecting to home")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	// Get or create session (ignore decrypt errors - we're clearing it anyway)
	cookie, _ := a.cookieStore.Get(r, sessionName)
	if sessionID, ok := cookie.Values[sessionIDKey].(string); ok && sessionID != "" {
		if err := a.sessions.Delete(r.Context(), sessionID); err != nil {
			logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to delete session")
		}
	}

	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		logger.Error().Err(err).Msg("Failed to clear session cookie")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	returnTo := "/"
	if callbackURL, err := url.Parse(a.callbackURL); err == nil && callbackURL.Host != "" {
		returnTo = fmt.Sprintf("%s://%s", callbackURL.Scheme, callbackURL.Host)
	}

	logoutURL := returnTo
	if l, ok := a.template.Provider().(LogoutURLer); ok {
		logoutURL = l.GetLogoutURL(returnTo)
	}

	logger.Info().Str("logout_url", logoutURL).Msg("Logging out user")
	http.Redirect(w, r, logoutURL, http.StatusTemporaryRedirect)
}

// HandleUpdateStatus posts the form value "message" for the current user.
func (a *Authenticator) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		a.writeError(w, r, errs.New(errs.KindInvalidRequest, "update_status", errs.ErrNotAuthenticated))
		return
	}

	if err := a.template.Provider().UpdateStatus(r.Context(), session, r.FormValue("message")); err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"posted": true})
}

// ContactsResponse is returned by HandleContacts.
type ContactsResponse struct {
	Supported bool             `json:"supported"`
	Contacts  []models.Profile `json:"contacts"`
}

// HandleContacts lists the current user's contacts. Supported is false when
// the provider offers no contact list.
func (a *Authenticator) HandleContacts(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		a.writeError(w, r, errs.New(errs.KindInvalidRequest, "contacts", errs.ErrNotAuthenticated))
		return
	}

	provider := a.template.Provider()
	contacts, err := provider.GetContactList(r.Context(), session)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []models.Profile{}
	}

	writeJSON(w, http.StatusOK, ContactsResponse{
		Supported: provider.Capabilities().Has(CapContacts),
		Contacts:  contacts,
	})
}

// CurrentSession returns the stored session referenced by the request cookie.
// It returns nil, nil when the request carries no known session.
func (a *Authenticator) CurrentSession(r *http.Request) (*models.Session, error) {
	cookie, err := a.cookieStore.Get(r, sessionName)
	if err != nil {
		return nil, nil
	}
	sessionID, _ := cookie.Values[sessionIDKey].(string)
	return a.loadSession(r.Context(), sessionID)
}

func (a *Authenticator) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	return a.sessions.Find(ctx, sessionID)
}

// StatusCode maps a provider failure onto the HTTP status returned to the browser.
func StatusCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInvalidRequest:
		return http.StatusBadRequest
	case errs.KindUnsupported:
		return http.StatusNotImplemented
	case errs.KindTransport:
		return http.StatusGatewayTimeout
	case errs.KindMalformedResponse, errs.KindIncompleteResponse, errs.KindRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (a *Authenticator) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())
	status := StatusCode(err)
	kind := errs.KindOf(err)

	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("kind", string(kind)).
		Int("status_code", status).
		Msg("Authentication request failed")

	message := http.StatusText(status)
	var e *errs.Error
	if errors.As(err, &e) && status < http.StatusInternalServerError {
		message = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
