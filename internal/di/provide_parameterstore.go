package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	// Check if SSM should be disabled (local development)
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation.
// A properties file wins, then SSM; environment variables are used when SSM is disabled.
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string, propertiesFile PropertiesFile) (services.ParameterStore, error) {
	logger := zerolog.Ctx(ctx)

	if propertiesFile != "" {
		logger.Info().Str("path", string(propertiesFile)).Msg("Using properties file for configuration")
		return services.NewPropertiesParameterStore(env, string(propertiesFile))
	}

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore(env), nil
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env), nil
}

// ProvideAppConfig loads application configuration. Provider credentials
// missing from the store are read from Secrets Manager.
func ProvideAppConfig(ctx context.Context, store services.ParameterStore, secrets *services.SecretsManagerService) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if !hasCredentials(config) {
		oauthConfig, err := secrets.GetOAuthConfig(ctx, config.OAuthSecretName)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("secret_name", config.OAuthSecretName).Msg("Unable to read provider credentials from Secrets Manager")
		case oauthConfig != nil:
			oauthConfig.Apply(config)
		}
	}

	logger.Info().
		Str("provider", config.Provider).
		Str("session_backend", config.SessionBackend).
		Dur("http_timeout", config.HTTPTimeout).
		Int("http_max_retries", config.MaxRetries).
		Bool("has_credentials", hasCredentials(config)).
		Bool("has_allowed_email", config.AllowedEmail != "").
		Int("allowed_domains", len(config.AllowedDomains)).
		Bool("has_custom_domain", config.CustomDomain != "").
		Msg("Configuration loaded successfully")

	return config, nil
}

func hasCredentials(config *services.Config) bool {
	if config.Provider == "facebook" {
		return config.ConsumerKey != "" && config.ConsumerSecret != ""
	}
	return config.ClientID != ""
}
