package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/auth"
	"github.com/savaki/socialauth/internal/gql"
	"github.com/savaki/socialauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	provider, err := auth.NewFacebookProvider(auth.FacebookConfig{ConsumerKey: "key", ConsumerSecret: "secret"})
	require.NoError(t, err)

	template := auth.NewTemplate(provider)
	authenticator, err := auth.NewAuthenticator(context.Background(), auth.AuthenticatorInput{
		Template:    template,
		Sessions:    store.NewMemory(0),
		CallbackURL: "http://localhost:8080/oauth/callback",
		IsLocalDev:  true,
	})
	require.NoError(t, err)

	schema, err := gql.NewSchema(gql.NewResolver(gql.Config{Template: template}))
	require.NoError(t, err)

	return &Handler{authenticator: authenticator, schema: schema}
}

func TestBuildCallbackURL(t *testing.T) {
	t.Setenv("AWS_REGION", "us-west-2")

	testCases := map[string]struct {
		env          string
		customDomain string
		apiGatewayID string
		port         string
		want         string
	}{
		"local": {
			port: "3000",
			want: "http://localhost:3000/oauth/callback",
		},
		"custom domain": {
			env:          "prod",
			customDomain: "login.example.com",
			apiGatewayID: "abc123",
			want:         "https://login.example.com/oauth/callback",
		},
		"api gateway": {
			env:          "prod",
			apiGatewayID: "abc123",
			want:         "https://abc123.execute-api.us-west-2.amazonaws.com/prod/oauth/callback",
		},
		"fallback": {
			want: "http://localhost:8080/oauth/callback",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := buildCallbackURL(tc.env, tc.customDomain, tc.apiGatewayID, tc.port)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStripEnvPrefixMiddleware(t *testing.T) {
	var path string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	})

	handler := stripEnvPrefixMiddleware("dev", next)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dev/login", nil))
	assert.Equal(t, "/login", path)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dev", nil))
	assert.Equal(t, "/", path)

	stripEnvPrefixMiddleware("", next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dev/login", nil))
	assert.Equal(t, "/dev/login", path)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)

	handler := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEqual(t, zerolog.Disabled, zerolog.Ctx(r.Context()).GetLevel())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"status_code":418`)
	assert.Contains(t, buf.String(), "Request completed")
}

func TestRouter(t *testing.T) {
	router := newTestHandler(t).setupRouter()

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("login redirects to provider", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), auth.FacebookAuthorizeURL))
	})

	t.Run("me requires session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("home redirects to login", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("graphql signed out", func(t *testing.T) {
		body := `{"query":"{ ok me { email } provider { type } }"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data struct {
				Ok       string
				Me       *struct{ Email string }
				Provider struct{ Type string }
			}
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Data.Ok)
		assert.Nil(t, resp.Data.Me)
		assert.Equal(t, auth.FacebookProviderType, resp.Data.Provider.Type)
	})
}
