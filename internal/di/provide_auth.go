package di

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/auth"
	"github.com/savaki/socialauth/internal/authz"
	"github.com/savaki/socialauth/internal/dao/sessiondao"
	"github.com/savaki/socialauth/internal/services"
	"github.com/savaki/socialauth/internal/store"
)

func ProvideHTTPOptions(config *services.Config) auth.HTTPOptions {
	return auth.HTTPOptions{
		Timeout:    config.HTTPTimeout,
		MaxRetries: config.MaxRetries,
	}
}

// ProvideProvider creates the identity provider named by config.Provider.
// Returns a nil provider when auth is disabled.
func ProvideProvider(ctx context.Context, config *services.Config, httpOptions auth.HTTPOptions, disableAuth DisableAuth) (auth.Provider, error) {
	if bool(disableAuth) {
		return nil, nil
	}

	switch config.Provider {
	case auth.FacebookProviderType:
		return auth.NewFacebookProvider(auth.FacebookConfig{
			ConsumerKey:    config.ConsumerKey,
			ConsumerSecret: config.ConsumerSecret,
			AuthorizeURL:   config.AuthorizeURL,
			TokenURL:       config.TokenURL,
			ProfileURL:     config.ProfileURL,
			StatusURL:      config.StatusURL,
			Permissions:    config.Scopes,
			HTTP:           httpOptions,
		})
	case "auth0":
		return auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			Issuer:       &auth.Auth0Issuer{Domain: config.Domain},
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       config.Scopes,
			HTTP:         httpOptions,
		})
	case "google-ciam":
		// Google Cloud Identity Platform / Firebase Auth
		return auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			Issuer:       &auth.GoogleCIAMIssuer{ProjectID: config.ProjectID},
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       config.Scopes,
			HTTP:         httpOptions,
		})
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Provider)
	}
}

func ProvideTemplate(provider auth.Provider) *auth.Template {
	return auth.NewTemplate(provider)
}

// ProvideSessionStore selects the session backend. Auth disabled always uses memory.
func ProvideSessionStore(ctx context.Context, env string, config *services.Config, client *dynamodb.Client, disableAuth DisableAuth) (auth.SessionStore, error) {
	logger := zerolog.Ctx(ctx)

	backend := config.SessionBackend
	if bool(disableAuth) {
		backend = "memory"
	}

	switch backend {
	case "memory":
		logger.Info().Msg("Using in-memory session store")
		return store.NewMemory(config.SessionTTL), nil
	case "redis":
		logger.Info().Msg("Using Redis session store")
		return store.NewRedis(ctx, config.RedisURL, config.SessionTTL)
	case "dynamodb":
		tableName := config.SessionTableName
		if tableName == "" {
			tableName = sessiondao.TableName(env)
		}
		logger.Info().Str("table", tableName).Msg("Using DynamoDB session store")
		return sessiondao.New(client, tableName, config.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", backend)
	}
}

func ProvideSessionKeyService(secrets *services.SecretsManagerService, config *services.Config) *services.SessionKeyService {
	return services.NewSessionKeyService(secrets, config.SessionTokenSecretName)
}

func ProvideSessionKeys(ctx context.Context, keyService *services.SessionKeyService, disableAuth DisableAuth) ([][]byte, error) {
	logger := zerolog.Ctx(ctx)

	if bool(disableAuth) {
		return [][]byte{}, nil
	}

	keys, err := keyService.GetSessionKeys(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch session keys from Secrets Manager")

		// In production (Lambda), we must fail fast rather than using ephemeral keys
		// Ephemeral keys break sessions across Lambda containers causing auth loops
		if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
			return nil, fmt.Errorf("session keys required in Lambda environment: %w", err)
		}

		// For local development, allow fallback to ephemeral key
		logger.Warn().Msg("Using ephemeral session key for local development only")
		return [][]byte{}, nil
	}
	return keys, nil
}

func ProvideAuthenticator(ctx context.Context, template *auth.Template, sessions auth.SessionStore, authorizer *authz.Authorizer, callbackURL CallbackURL, sessionKeys [][]byte, config *services.Config, disableAuth DisableAuth) (*auth.Authenticator, error) {
	logger := zerolog.Ctx(ctx)

	// If auth is disabled, return NoOp authenticator
	if bool(disableAuth) {
		logger.Warn().Msg("Authentication is DISABLED - using NoOp authenticator (development only)")
		return auth.NewNoOpAuthenticator(), nil
	}

	// Detect local development: if callback URL uses http://localhost or http://127.0.0.1
	// In local dev, we need to disable Secure cookie flag since we're on HTTP
	callbackURLStr := string(callbackURL)
	isLocalDev := strings.HasPrefix(callbackURLStr, "http://localhost") ||
		strings.HasPrefix(callbackURLStr, "http://127.0.0.1")

	authenticator, err := auth.NewAuthenticator(ctx, auth.AuthenticatorInput{
		Template:    template,
		Sessions:    sessions,
		CallbackURL: callbackURLStr,
		Authorizer:  authorizer,
		SessionKeys: sessionKeys,
		MaxAge:      int(config.SessionTTL.Seconds()),
		IsLocalDev:  isLocalDev,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	return authenticator, nil
}

// ProvideAuthorizer builds the policy chain from the allowed email and domains.
// Returns nil when no restriction is configured.
func ProvideAuthorizer(ctx context.Context, config *services.Config) (*authz.Authorizer, error) {
	logger := zerolog.Ctx(ctx)

	var policies []authz.Policy
	if config.AllowedEmail != "" {
		policies = append(policies, &authz.EmailPolicy{AllowedEmail: config.AllowedEmail})
	}
	if len(config.AllowedDomains) > 0 {
		policy, err := authz.NewRegoPolicy(ctx, config.AllowedDomains)
		if err != nil {
			return nil, fmt.Errorf("failed to create domain policy: %w", err)
		}
		policies = append(policies, policy)
	}

	if len(policies) == 0 {
		logger.Info().Msg("Authorization disabled - all authenticated users allowed")
		return nil, nil
	}

	logger.Info().
		Str("allowed_email", config.AllowedEmail).
		Strs("allowed_domains", config.AllowedDomains).
		Msg("Authorization enabled")

	return authz.NewAuthorizer(true, policies...), nil
}
