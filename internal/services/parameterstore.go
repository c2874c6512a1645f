package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/viper"
)

const (
	DefaultProvider       = "facebook"
	DefaultSessionBackend = "memory"
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultMaxRetries     = 2
	DefaultSessionTTL     = 7 * 24 * time.Hour
)

// Config holds all application configuration values from Parameter Store
type Config struct {
	Provider string // facebook, auth0 or google-ciam

	// Facebook consumer credentials and Graph API endpoints
	ConsumerKey    string
	ConsumerSecret string
	AuthorizeURL   string
	TokenURL       string
	ProfileURL     string
	StatusURL      string
	Scopes         []string

	// OIDC issuers
	ClientID     string
	ClientSecret string
	Domain       string // Auth0 tenant domain
	ProjectID    string // Google Cloud project

	HTTPTimeout time.Duration
	MaxRetries  int // negative disables retries

	SessionBackend   string // memory, redis or dynamodb
	SessionTableName string
	RedisURL         string
	SessionTTL       time.Duration

	AllowedEmail           string
	AllowedDomains         []string
	SessionTokenSecretName string
	OAuthSecretName        string
	CustomDomain           string
	APIGatewayID           string
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all application configuration from Parameter Store
	GetConfig(ctx context.Context) (*Config, error)
}

// parameter names one configuration value in each backing store.
type parameter struct {
	name     string // SSM suffix under /{env}/socialauth/
	envVar   string
	property string
}

var (
	pProvider       = parameter{"provider", "AUTH_PROVIDER", "socialauth.provider"}
	pConsumerKey    = parameter{"consumer-key", "FACEBOOK_CONSUMER_KEY", "graph.facebook.com.consumer_key"}
	pConsumerSecret = parameter{"consumer-secret", "FACEBOOK_CONSUMER_SECRET", "graph.facebook.com.consumer_secret"}
	pAuthorizeURL   = parameter{"authorize-url", "FACEBOOK_AUTHORIZE_URL", "graph.facebook.com.authorize_url"}
	pTokenURL       = parameter{"token-url", "FACEBOOK_TOKEN_URL", "graph.facebook.com.token_url"}
	pProfileURL     = parameter{"profile-url", "FACEBOOK_PROFILE_URL", "graph.facebook.com.profile_url"}
	pStatusURL      = parameter{"status-url", "FACEBOOK_STATUS_URL", "graph.facebook.com.status_url"}
	pScopes         = parameter{"scopes", "AUTH_SCOPES", "graph.facebook.com.permissions"}
	pClientID       = parameter{"client-id", "OIDC_CLIENT_ID", "oidc.client_id"}
	pClientSecret   = parameter{"client-secret", "OIDC_CLIENT_SECRET", "oidc.client_secret"}
	pDomain         = parameter{"domain", "AUTH0_DOMAIN", "auth0.domain"}
	pProjectID      = parameter{"project-id", "GOOGLE_PROJECT_ID", "google.project_id"}
	pHTTPTimeout    = parameter{"http-timeout", "HTTP_TIMEOUT", "socialauth.http_timeout"}
	pMaxRetries     = parameter{"http-max-retries", "HTTP_MAX_RETRIES", "socialauth.http_max_retries"}
	pSessionBackend = parameter{"session-backend", "SESSION_BACKEND", "socialauth.session_backend"}
	pSessionTable   = parameter{"session-table", "SESSION_TABLE_NAME", "socialauth.session_table"}
	pRedisURL       = parameter{"redis-url", "REDIS_URL", "socialauth.redis_url"}
	pSessionTTL     = parameter{"session-ttl", "SESSION_TTL", "socialauth.session_ttl"}
	pAllowedEmail   = parameter{"allowed-email", "ALLOWED_EMAIL", "socialauth.allowed_email"}
	pAllowedDomains = parameter{"allowed-domains", "ALLOWED_DOMAINS", "socialauth.allowed_domains"}
	pSessionSecret  = parameter{"session-token-secret-name", "SESSION_TOKEN_SECRET_NAME", "socialauth.session_token_secret_name"}
	pOAuthSecret    = parameter{"oauth-secret-name", "OAUTH_SECRET_NAME", "socialauth.oauth_secret_name"}
	pCustomDomain   = parameter{"custom-domain", "CUSTOM_DOMAIN", "socialauth.custom_domain"}
	pAPIGatewayID   = parameter{"api-gateway-id", "API_GATEWAY_ID", "socialauth.api_gateway_id"}
)

// propertyAliases lists older endpoint property names, checked in order when
// the primary property is unset.
var propertyAliases = map[string][]string{
	pAuthorizeURL.property: {"graph.facebook.com.authorization_url"},
	pTokenURL.property:     {"graph.facebook.com.access_token_url", "graph.facebook.com.request_token_url"},
}

// buildConfig assembles a Config from lookup and applies defaults.
func buildConfig(env string, lookup func(p parameter) string) (*Config, error) {
	config := &Config{
		Provider:               lookup(pProvider),
		ConsumerKey:            lookup(pConsumerKey),
		ConsumerSecret:         lookup(pConsumerSecret),
		AuthorizeURL:           lookup(pAuthorizeURL),
		TokenURL:               lookup(pTokenURL),
		ProfileURL:             lookup(pProfileURL),
		StatusURL:              lookup(pStatusURL),
		Scopes:                 splitList(lookup(pScopes)),
		ClientID:               lookup(pClientID),
		ClientSecret:           lookup(pClientSecret),
		Domain:                 lookup(pDomain),
		ProjectID:              lookup(pProjectID),
		SessionBackend:         lookup(pSessionBackend),
		SessionTableName:       lookup(pSessionTable),
		RedisURL:               lookup(pRedisURL),
		AllowedEmail:           lookup(pAllowedEmail),
		AllowedDomains:         splitList(lookup(pAllowedDomains)),
		SessionTokenSecretName: lookup(pSessionSecret),
		OAuthSecretName:        lookup(pOAuthSecret),
		CustomDomain:           lookup(pCustomDomain),
		APIGatewayID:           lookup(pAPIGatewayID),
		HTTPTimeout:            DefaultHTTPTimeout,
		MaxRetries:             DefaultMaxRetries,
		SessionTTL:             DefaultSessionTTL,
	}

	if v := lookup(pHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", pHTTPTimeout.name, v, err)
		}
		config.HTTPTimeout = d
	}
	if v := lookup(pMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", pMaxRetries.name, v, err)
		}
		config.MaxRetries = n
	}
	if v := lookup(pSessionTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", pSessionTTL.name, v, err)
		}
		config.SessionTTL = d
	}

	// Set defaults
	if config.Provider == "" {
		config.Provider = DefaultProvider
	}
	if config.SessionBackend == "" {
		config.SessionBackend = DefaultSessionBackend
	}
	if config.SessionTokenSecretName == "" {
		config.SessionTokenSecretName = fmt.Sprintf("socialauth/%s/session-token", env)
	}
	if config.OAuthSecretName == "" {
		config.OAuthSecretName = fmt.Sprintf("socialauth/%s/oauth", env)
	}

	return config, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client *ssm.Client
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	// Check cache first
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	// Fetch from SSM
	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	// Cache the value
	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all application configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/socialauth", s.env)

	// Paginate: a single call returns at most 10 parameters
	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	// Cache all retrieved parameters
	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	return buildConfig(s.env, func(p parameter) string {
		return params[path+"/"+p.name]
	})
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env    string
	getenv func(string) string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env:    env,
		getenv: os.Getenv,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return e.getenv(name), nil
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return buildConfig(e.env, func(p parameter) string {
		return strings.TrimSpace(e.getenv(p.envVar))
	})
}

// PropertiesParameterStore reads a Java style .properties file, e.g.
//
//	graph.facebook.com.consumer_key=...
//	graph.facebook.com.consumer_secret=...
type PropertiesParameterStore struct {
	env string
	v   *viper.Viper
}

// NewPropertiesParameterStore loads path.
func NewPropertiesParameterStore(env, path string) (*PropertiesParameterStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read properties file %s: %w", path, err)
	}

	return &PropertiesParameterStore{
		env: env,
		v:   v,
	}, nil
}

// GetParameter returns the property named name, or "" when unset.
func (p *PropertiesParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return p.v.GetString(name), nil
}

// GetConfig loads all application configuration from the properties file
func (p *PropertiesParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	return buildConfig(p.env, p.lookup)
}

func (p *PropertiesParameterStore) lookup(param parameter) string {
	if v := strings.TrimSpace(p.v.GetString(param.property)); v != "" {
		return v
	}
	for _, alias := range propertyAliases[param.property] {
		if v := strings.TrimSpace(p.v.GetString(alias)); v != "" {
			return v
		}
	}
	return ""
}

func boolPtr(b bool) *bool {
	return &b
}
