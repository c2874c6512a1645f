package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	errs "github.com/savaki/socialauth/internal/errors"
	"github.com/savaki/socialauth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProfileJSON = `{"id":"1","first_name":"A","last_name":"B","email":"a@b.com","locale":"en_US"}`

type fakeGraph struct {
	tokenBody    string
	tokenStatus  int
	profileBody  string
	statusCode   int
	tokenCalls   atomic.Int32
	statusCalls  atomic.Int32
	lastExchange url.Values
	lastStatus   url.Values
}

func (f *fakeGraph) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		f.lastExchange = r.URL.Query()
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			return
		}
		_, _ = w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(f.profileBody))
	})
	mux.HandleFunc("/me/feed", func(w http.ResponseWriter, r *http.Request) {
		f.statusCalls.Add(1)
		_ = r.ParseForm()
		f.lastStatus = r.PostForm
		w.WriteHeader(f.statusCode)
	})
	return mux
}

func newTestFacebook(t *testing.T, graph *fakeGraph) *FacebookProvider {
	t.Helper()

	server := httptest.NewServer(graph.handler())
	t.Cleanup(server.Close)

	provider, err := NewFacebookProvider(FacebookConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		AuthorizeURL:   server.URL + "/oauth/authorize",
		TokenURL:       server.URL + "/oauth/access_token",
		ProfileURL:     server.URL + "/me",
		StatusURL:      server.URL + "/me/feed",
		HTTP: HTTPOptions{
			Timeout:         2 * time.Second,
			InitialInterval: time.Millisecond,
		},
	})
	require.NoError(t, err)
	return provider
}

func newIssuedSession(t *testing.T, provider Provider) *models.Session {
	t.Helper()

	session, err := models.NewSession(provider.GetProviderType())
	require.NoError(t, err)
	_, err = provider.GetLoginRedirectURL(session, "https://app.example.com/oauth/callback")
	require.NoError(t, err)
	return session
}

func callbackRequest(code string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/oauth/callback?code="+url.QueryEscape(code), nil)
}

func TestNewFacebookProvider_RequiresCredentials(t *testing.T) {
	_, err := NewFacebookProvider(FacebookConfig{ConsumerKey: "key"})
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))
}

func TestFacebookProvider_GetLoginRedirectURL(t *testing.T) {
	provider, err := NewFacebookProvider(FacebookConfig{ConsumerKey: "key", ConsumerSecret: "secret"})
	require.NoError(t, err)

	session, err := models.NewSession(FacebookProviderType)
	require.NoError(t, err)

	redirectURI := "https://app.example.com/oauth/callback?next=/home&x=1"
	authURL, err := provider.GetLoginRedirectURL(session, redirectURI)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "graph.facebook.com", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "key", q.Get("client_id"))
	assert.Equal(t, "page", q.Get("display"))
	assert.Equal(t, redirectURI, q.Get("redirect_uri"))
	assert.Equal(t, session.State, q.Get("state"))
	assert.Equal(t, []string{"publish_stream,email,user_birthday,user_location"}, q["scope"])

	for _, perm := range FacebookPermissions {
		assert.Equal(t, 1, strings.Count(q.Get("scope"), perm), perm)
	}

	assert.Equal(t, redirectURI, session.RedirectURI)
	assert.Equal(t, models.StageRedirectIssued, session.Stage)
}

func TestFacebookProvider_GetLoginRedirectURL_EmptyRedirect(t *testing.T) {
	provider, err := NewFacebookProvider(FacebookConfig{ConsumerKey: "key", ConsumerSecret: "secret"})
	require.NoError(t, err)

	session, err := models.NewSession(FacebookProviderType)
	require.NoError(t, err)

	_, err = provider.GetLoginRedirectURL(session, "")
	assert.ErrorIs(t, err, errs.ErrRedirectURIRequired)
	assert.Equal(t, models.StageUnauthenticated, session.Stage)
}

func TestParseTokenResponse(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantToken   string
		wantExpires int
		wantKind    errs.Kind
	}{
		{name: "legacy pairs", body: "access_token=ABC123&expires=5000", wantToken: "ABC123", wantExpires: 5000},
		{name: "expires_in", body: "expires_in=60&access_token=XYZ", wantToken: "XYZ", wantExpires: 60},
		{name: "escaped value", body: "access_token=a%2Fb&expires=1", wantToken: "a/b", wantExpires: 1},
		{name: "json", body: `{"access_token":"ABC123","token_type":"bearer","expires_in":5183944}`, wantToken: "ABC123", wantExpires: 5183944},
		{name: "three parts", body: "foo=bar=baz", wantKind: errs.KindMalformedResponse},
		{name: "no separator", body: "access_token", wantKind: errs.KindMalformedResponse},
		{name: "bad expires", body: "access_token=ABC&expires=soon", wantKind: errs.KindMalformedResponse},
		{name: "missing expires", body: "access_token=ABC123", wantKind: errs.KindIncompleteResponse},
		{name: "missing token", body: "expires=5000", wantKind: errs.KindIncompleteResponse},
		{name: "json missing expires", body: `{"access_token":"ABC123"}`, wantKind: errs.KindIncompleteResponse},
		{name: "broken json", body: `{"access_token":`, wantKind: errs.KindMalformedResponse},
		{name: "zero expires", body: "access_token=ABC123&expires=0", wantToken: "ABC123", wantExpires: 0},
		{name: "json zero expires", body: `{"access_token":"ABC123","expires_in":0}`, wantToken: "ABC123", wantExpires: 0},
		{name: "negative expires", body: "access_token=ABC123&expires=-5", wantKind: errs.KindMalformedResponse},
		{name: "json negative expires", body: `{"access_token":"ABC123","expires_in":-5}`, wantKind: errs.KindMalformedResponse},
		{name: "literal plus", body: "access_token=ab+cd&expires=5", wantToken: "ab+cd", wantExpires: 5},
		{name: "trailing ampersand", body: "access_token=ABC123&expires=5&", wantToken: "ABC123", wantExpires: 5},
		{name: "empty pairs", body: "&access_token=ABC123&&expires=5", wantToken: "ABC123", wantExpires: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expires, err := ParseTokenResponse([]byte(tt.body))
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantExpires, expires)
		})
	}
}

func TestParseTokenResponse_UnexpectedPair(t *testing.T) {
	_, _, err := ParseTokenResponse([]byte("foo=bar=baz"))
	assert.ErrorIs(t, err, errs.ErrUnexpectedAuthResponse)

	_, _, err = ParseTokenResponse([]byte("access_token=ABC123"))
	assert.ErrorIs(t, err, errs.ErrTokenNotFound)
}

func TestParseFacebookProfile(t *testing.T) {
	profile, err := ParseFacebookProfile([]byte(testProfileJSON))
	require.NoError(t, err)

	assert.Equal(t, "1", profile.ValidatedID)
	assert.Equal(t, FacebookProviderType, profile.ProviderID)
	assert.Equal(t, "A", profile.FirstName)
	assert.Equal(t, "B", profile.LastName)
	assert.Equal(t, "a@b.com", profile.Email)
	assert.Equal(t, "en", profile.Language)
	assert.Equal(t, "US", profile.Country)
	assert.Empty(t, profile.Location)
	assert.Empty(t, profile.DOB)
	assert.Empty(t, profile.Gender)
}

func TestParseFacebookProfile_Optional(t *testing.T) {
	body := `{"id":"7","first_name":"Jo","last_name":"Doe","name":"Jo Doe","email":"jo@example.com",
		"locale":"fr","location":{"id":"9","name":"Paris, France"},"birthday":"01/02/1990","gender":"female"}`

	profile, err := ParseFacebookProfile([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "Jo Doe", profile.FullName)
	assert.Equal(t, "Paris, France", profile.Location)
	assert.Equal(t, "01/02/1990", profile.DOB)
	assert.Equal(t, "female", profile.Gender)
	assert.Equal(t, "fr", profile.Language)
	assert.Empty(t, profile.Country)
}

func TestParseFacebookProfile_MissingRequired(t *testing.T) {
	for _, field := range []string{"id", "first_name", "last_name", "email", "locale"} {
		t.Run(field, func(t *testing.T) {
			body := strings.Replace(testProfileJSON, `"`+field+`"`, `"x_`+field+`"`, 1)

			_, err := ParseFacebookProfile([]byte(body))
			require.Error(t, err)
			assert.True(t, errs.IsMalformed(err))
			assert.Contains(t, err.Error(), field)
		})
	}

	_, err := ParseFacebookProfile([]byte("<html>"))
	assert.True(t, errs.IsMalformed(err))
}

func TestParseFacebookProfile_EmptyID(t *testing.T) {
	for _, id := range []string{`""`, `"  "`} {
		body := strings.Replace(testProfileJSON, `"id":"1"`, `"id":`+id, 1)

		profile, err := ParseFacebookProfile([]byte(body))
		require.Error(t, err, id)
		assert.Nil(t, profile)
		assert.True(t, errs.IsMalformed(err))
		assert.Contains(t, err.Error(), "id")
	}
}

func TestFacebookProvider_VerifyResponse(t *testing.T) {
	graph := &fakeGraph{
		tokenBody:   "access_token=ABC123&expires=5000",
		profileBody: testProfileJSON,
	}
	provider := newTestFacebook(t, graph)
	session := newIssuedSession(t, provider)

	profile, err := provider.VerifyResponse(context.Background(), session, callbackRequest("the-code"))
	require.NoError(t, err)

	assert.Equal(t, "1", profile.ValidatedID)
	assert.Equal(t, "key", graph.lastExchange.Get("client_id"))
	assert.Equal(t, "secret", graph.lastExchange.Get("client_secret"))
	assert.Equal(t, "the-code", graph.lastExchange.Get("code"))
	assert.Equal(t, "https://app.example.com/oauth/callback", graph.lastExchange.Get("redirect_uri"))

	assert.True(t, session.IsAuthenticated())
	assert.Equal(t, "ABC123", session.AccessToken)
	assert.WithinDuration(t, time.Now().Add(5000*time.Second), session.Expiry, time.Minute)
	assert.Equal(t, profile, session.Profile)
}

func TestFacebookProvider_VerifyResponse_NonExpiringToken(t *testing.T) {
	graph := &fakeGraph{
		tokenBody:   "access_token=ab+cd&expires=0&",
		profileBody: testProfileJSON,
		statusCode:  http.StatusOK,
	}
	provider := newTestFacebook(t, graph)
	session := newIssuedSession(t, provider)

	_, err := provider.VerifyResponse(context.Background(), session, callbackRequest("the-code"))
	require.NoError(t, err)

	assert.True(t, session.Expiry.IsZero())
	assert.True(t, session.IsAuthenticated())
	assert.Equal(t, "ab+cd", session.AccessToken)

	require.NoError(t, provider.UpdateStatus(context.Background(), session, "hello"))
	assert.Equal(t, "ab+cd", graph.lastStatus.Get("access_token"))
}

func TestFacebookProvider_VerifyResponse_MissingCode(t *testing.T) {
	graph := &fakeGraph{}
	provider := newTestFacebook(t, graph)
	session := newIssuedSession(t, provider)

	_, err := provider.VerifyResponse(context.Background(), session, callbackRequest(""))
	assert.ErrorIs(t, err, errs.ErrCodeMissing)
	assert.True(t, errs.IsInvalid(err))
	assert.Equal(t, int32(0), graph.tokenCalls.Load())
	assert.Equal(t, models.StageRedirectIssued, session.Stage)
}

func TestFacebookProvider_VerifyResponse_Denied(t *testing.T) {
	provider := newTestFacebook(t, &fakeGraph{})
	session := newIssuedSession(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&error_description=nope", nil)
	_, err := provider.VerifyResponse(context.Background(), session, req)
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))
	assert.Contains(t, err.Error(), "access_denied")
}

func TestFacebookProvider_VerifyResponse_Failures(t *testing.T) {
	tests := []struct {
		name  string
		graph *fakeGraph
		want  errs.Kind
	}{
		{
			name:  "malformed exchange",
			graph: &fakeGraph{tokenBody: "foo=bar=baz", profileBody: testProfileJSON},
			want:  errs.KindMalformedResponse,
		},
		{
			name:  "incomplete exchange",
			graph: &fakeGraph{tokenBody: "access_token=ABC123", profileBody: testProfileJSON},
			want:  errs.KindIncompleteResponse,
		},
		{
			name:  "profile missing email",
			graph: &fakeGraph{tokenBody: "access_token=ABC123&expires=5000", profileBody: `{"id":"1","first_name":"A","last_name":"B","locale":"en_US"}`},
			want:  errs.KindMalformedResponse,
		},
		{
			name:  "negative expires",
			graph: &fakeGraph{tokenBody: "access_token=ABC123&expires=-1", profileBody: testProfileJSON},
			want:  errs.KindMalformedResponse,
		},
		{
			name:  "profile empty id",
			graph: &fakeGraph{tokenBody: "access_token=ABC123&expires=5000", profileBody: `{"id":"","first_name":"A","last_name":"B","email":"a@b.com","locale":"en_US"}`},
			want:  errs.KindMalformedResponse,
		},
		{
			name:  "exchange rejected",
			graph: &fakeGraph{tokenStatus: http.StatusBadRequest},
			want:  errs.KindRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestFacebook(t, tt.graph)
			session := newIssuedSession(t, provider)

			_, err := provider.VerifyResponse(context.Background(), session, callbackRequest("code"))
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.KindOf(err))

			assert.False(t, session.IsAuthenticated())
			assert.Empty(t, session.AccessToken)
			assert.Nil(t, session.Profile)
		})
	}
}

func TestFacebookProvider_VerifyResponse_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("access_token=ABC123&expires=5000"))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testProfileJSON))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	provider, err := NewFacebookProvider(FacebookConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		TokenURL:       server.URL + "/token",
		ProfileURL:     server.URL + "/me",
		HTTP:           HTTPOptions{InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	session := newIssuedSession(t, provider)

	_, err = provider.VerifyResponse(context.Background(), session, callbackRequest("code"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFacebookProvider_VerifyResponse_Transport(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	tokenURL := server.URL + "/token"
	server.Close()

	provider, err := NewFacebookProvider(FacebookConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		TokenURL:       tokenURL,
		HTTP:           HTTPOptions{MaxRetries: -1},
	})
	require.NoError(t, err)
	session := newIssuedSession(t, provider)

	_, err = provider.VerifyResponse(context.Background(), session, callbackRequest("code"))
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
}

func TestFacebookProvider_UpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{name: "ok", statusCode: http.StatusOK},
		{name: "server error", statusCode: http.StatusInternalServerError, wantErr: true},
		{name: "forbidden", statusCode: http.StatusForbidden, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := &fakeGraph{statusCode: tt.statusCode}
			provider := newTestFacebook(t, graph)
			session := &models.Session{
				ID:          "s1",
				Stage:       models.StageAuthenticated,
				AccessToken: "ABC123",
			}

			err := provider.UpdateStatus(context.Background(), session, "hello world")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsRejected(err))
				assert.ErrorIs(t, err, errs.ErrStatusNotUpdated)
			} else {
				require.NoError(t, err)
			}

			// posts are never retried
			assert.Equal(t, int32(1), graph.statusCalls.Load())
			assert.Equal(t, "ABC123", graph.lastStatus.Get("access_token"))
			assert.Equal(t, "hello world", graph.lastStatus.Get("message"))
		})
	}
}

func TestFacebookProvider_UpdateStatus_Validation(t *testing.T) {
	graph := &fakeGraph{statusCode: http.StatusOK}
	provider := newTestFacebook(t, graph)

	err := provider.UpdateStatus(context.Background(), &models.Session{Stage: models.StageRedirectIssued}, "hi")
	assert.ErrorIs(t, err, errs.ErrNotAuthenticated)

	authenticated := &models.Session{Stage: models.StageAuthenticated, AccessToken: "ABC"}
	err = provider.UpdateStatus(context.Background(), authenticated, "  ")
	assert.ErrorIs(t, err, errs.ErrMessageRequired)

	assert.Equal(t, int32(0), graph.statusCalls.Load())
}

func TestFacebookProvider_GetContactList(t *testing.T) {
	provider, err := NewFacebookProvider(FacebookConfig{ConsumerKey: "key", ConsumerSecret: "secret"})
	require.NoError(t, err)

	contacts, err := provider.GetContactList(context.Background(), &models.Session{})
	require.NoError(t, err)
	assert.NotNil(t, contacts)
	assert.Empty(t, contacts)
	assert.False(t, provider.Capabilities().Has(CapContacts))
	assert.True(t, provider.Capabilities().Has(CapStatusUpdate))
}
