package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

type SecretsManagerService struct {
	client *secretsmanager.Client
}

// OAuthConfig represents provider credentials kept in Secrets Manager rather
// than Parameter Store.
type OAuthConfig struct {
	Provider       string `json:"provider"`        // "facebook", "auth0" or "google-ciam"
	ConsumerKey    string `json:"consumer_key"`    // Facebook app id
	ConsumerSecret string `json:"consumer_secret"` // Facebook app secret
	ClientID       string `json:"client_id"`       // OIDC client ID
	ClientSecret   string `json:"client_secret"`   // OIDC client secret
	Domain         string `json:"domain"`          // For Auth0: tenant domain (e.g., "tenant.us.auth0.com")
	ProjectID      string `json:"project_id"`      // For Google CIAM: GCP project ID
}

// Apply copies the non-empty credentials onto cfg.
func (o *OAuthConfig) Apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Provider, o.Provider)
	set(&cfg.ConsumerKey, o.ConsumerKey)
	set(&cfg.ConsumerSecret, o.ConsumerSecret)
	set(&cfg.ClientID, o.ClientID)
	set(&cfg.ClientSecret, o.ClientSecret)
	set(&cfg.Domain, o.Domain)
	set(&cfg.ProjectID, o.ProjectID)
}

func NewSecretsManagerService(client *secretsmanager.Client) *SecretsManagerService {
	return &SecretsManagerService{
		client: client,
	}
}

// GetOAuthConfig retrieves provider credentials stored as JSON under secretName.
// Returns nil, nil when the secret does not exist.
func (s *SecretsManagerService) GetOAuthConfig(ctx context.Context, secretName string) (*OAuthConfig, error) {
	value, err := s.GetSecret(ctx, secretName)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return nil, nil
		}
		return nil, err
	}

	var oauthConfig OAuthConfig
	if err := json.Unmarshal([]byte(value), &oauthConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OAuth config: %w", err)
	}

	return &oauthConfig, nil
}

// GetSecret retrieves a secret value by path from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	return *result.SecretString, nil
}
