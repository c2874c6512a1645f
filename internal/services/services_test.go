package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvParameterStore_GetConfig(t *testing.T) {
	vars := map[string]string{
		"FACEBOOK_CONSUMER_KEY":    "key",
		"FACEBOOK_CONSUMER_SECRET": "secret",
		"AUTH_SCOPES":              "email, user_birthday,,",
		"HTTP_TIMEOUT":             "3s",
		"HTTP_MAX_RETRIES":         "-1",
		"SESSION_BACKEND":          "redis",
		"REDIS_URL":                "redis://localhost:6379/0",
		"ALLOWED_DOMAINS":          "example.com,example.org",
	}
	store := NewEnvParameterStore("dev")
	store.getenv = func(name string) string { return vars[name] }

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "facebook", config.Provider)
	assert.Equal(t, "key", config.ConsumerKey)
	assert.Equal(t, "secret", config.ConsumerSecret)
	assert.Equal(t, []string{"email", "user_birthday"}, config.Scopes)
	assert.Equal(t, 3*time.Second, config.HTTPTimeout)
	assert.Equal(t, -1, config.MaxRetries)
	assert.Equal(t, "redis", config.SessionBackend)
	assert.Equal(t, "redis://localhost:6379/0", config.RedisURL)
	assert.Equal(t, DefaultSessionTTL, config.SessionTTL)
	assert.Equal(t, []string{"example.com", "example.org"}, config.AllowedDomains)
	assert.Equal(t, "socialauth/dev/session-token", config.SessionTokenSecretName)
	assert.Equal(t, "socialauth/dev/oauth", config.OAuthSecretName)

	value, err := store.GetParameter(context.Background(), "REDIS_URL")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", value)
}

func TestEnvParameterStore_Defaults(t *testing.T) {
	store := NewEnvParameterStore("prd")
	store.getenv = func(string) string { return "" }

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultProvider, config.Provider)
	assert.Equal(t, DefaultSessionBackend, config.SessionBackend)
	assert.Equal(t, DefaultHTTPTimeout, config.HTTPTimeout)
	assert.Equal(t, DefaultMaxRetries, config.MaxRetries)
	assert.Nil(t, config.Scopes)
}

func TestEnvParameterStore_InvalidValues(t *testing.T) {
	for name, value := range map[string]string{
		"HTTP_TIMEOUT":     "ten seconds",
		"HTTP_MAX_RETRIES": "two",
		"SESSION_TTL":      "1 week",
	} {
		t.Run(name, func(t *testing.T) {
			store := NewEnvParameterStore("dev")
			store.getenv = func(key string) string {
				if key == name {
					return value
				}
				return ""
			}

			_, err := store.GetConfig(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestPropertiesParameterStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_consumer.properties")
	content := strings.Join([]string{
		"# facebook",
		"graph.facebook.com.consumer_key = 1234567890",
		"graph.facebook.com.consumer_secret = s3cr3t",
		"graph.facebook.com.permissions = email,user_location",
		"socialauth.session_ttl = 1h",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewPropertiesParameterStore("dev", path)
	require.NoError(t, err)

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1234567890", config.ConsumerKey)
	assert.Equal(t, "s3cr3t", config.ConsumerSecret)
	assert.Equal(t, []string{"email", "user_location"}, config.Scopes)
	assert.Equal(t, time.Hour, config.SessionTTL)

	value, err := store.GetParameter(context.Background(), "graph.facebook.com.consumer_key")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", value)
}

func TestPropertiesParameterStore_EndpointAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_consumer.properties")
	content := strings.Join([]string{
		"graph.facebook.com.consumer_key = key",
		"graph.facebook.com.consumer_secret = secret",
		"graph.facebook.com.authorization_url = https://www.facebook.com/dialog/oauth",
		"graph.facebook.com.request_token_url = https://graph.facebook.com/oauth/request_token",
		"graph.facebook.com.access_token_url = https://graph.facebook.com/oauth/access_token",
		"graph.facebook.com.profile_url = https://graph.facebook.com/me",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewPropertiesParameterStore("dev", path)
	require.NoError(t, err)

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://www.facebook.com/dialog/oauth", config.AuthorizeURL)
	assert.Equal(t, "https://graph.facebook.com/oauth/access_token", config.TokenURL)
	assert.Equal(t, "https://graph.facebook.com/me", config.ProfileURL)

	// primary names win over aliases
	content += "graph.facebook.com.token_url = https://example.com/token\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err = NewPropertiesParameterStore("dev", path)
	require.NoError(t, err)

	config, err = store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/token", config.TokenURL)
}

func TestNewPropertiesParameterStore_Missing(t *testing.T) {
	_, err := NewPropertiesParameterStore("dev", filepath.Join(t.TempDir(), "missing.properties"))
	assert.Error(t, err)
}

func TestOAuthConfig_Apply(t *testing.T) {
	config := &Config{Provider: "facebook", ConsumerKey: "old"}
	(&OAuthConfig{ConsumerKey: "new", ConsumerSecret: "secret"}).Apply(config)

	assert.Equal(t, "facebook", config.Provider)
	assert.Equal(t, "new", config.ConsumerKey)
	assert.Equal(t, "secret", config.ConsumerSecret)
}

func TestParseSessionKeys(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	secret := `[
		{"secret":"` + encoded + `","timestamp":"2025-10-06T12:58:53Z"},
		{"secret":"c2hvcnQ=","timestamp":"2025-10-05T12:58:53Z"},
		{"secret":"!!!","timestamp":"2025-10-04T12:58:53Z"}
	]`

	keys, err := ParseSessionKeys(context.Background(), secret)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key, keys[0])

	_, err = ParseSessionKeys(context.Background(), `[]`)
	assert.Error(t, err)

	_, err = ParseSessionKeys(context.Background(), `[{"secret":"c2hvcnQ="}]`)
	assert.Error(t, err)

	_, err = ParseSessionKeys(context.Background(), `not json`)
	assert.Error(t, err)
}

func TestRotateSessionKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)

	t.Run("fresh", func(t *testing.T) {
		secret, err := RotateSessionKeys(ctx, "", now)
		require.NoError(t, err)

		keys, err := ParseSessionKeys(ctx, secret)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
		assert.Contains(t, secret, "2025-10-06T12:00:00Z")
	})

	t.Run("corrupt", func(t *testing.T) {
		secret, err := RotateSessionKeys(ctx, "not-json", now)
		require.NoError(t, err)

		keys, err := ParseSessionKeys(ctx, secret)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("keeps newest versions", func(t *testing.T) {
		secret := ""
		var err error
		for i := 0; i < MaxSessionKeyVersions+2; i++ {
			secret, err = RotateSessionKeys(ctx, secret, now.Add(time.Duration(i)*time.Hour))
			require.NoError(t, err)
		}

		var versions []SecretVersion
		require.NoError(t, json.Unmarshal([]byte(secret), &versions))
		require.Len(t, versions, MaxSessionKeyVersions)
		assert.Equal(t, "2025-10-06T16:00:00Z", versions[0].Timestamp)
		assert.Equal(t, "2025-10-06T14:00:00Z", versions[2].Timestamp)
	})

	t.Run("drops invalid versions", func(t *testing.T) {
		current := `[{"secret":"c2hvcnQ=","timestamp":"x"},{"secret":"%%%","timestamp":"y"}]`
		secret, err := RotateSessionKeys(ctx, current, now)
		require.NoError(t, err)

		var versions []SecretVersion
		require.NoError(t, json.Unmarshal([]byte(secret), &versions))
		assert.Len(t, versions, 1)
	})
}

func TestGenerateSessionKey_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := GenerateSessionKey()
		require.NoError(t, err)
		assert.False(t, seen[key])
		seen[key] = true
	}
}
