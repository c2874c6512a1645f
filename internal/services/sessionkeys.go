package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const sessionKeyLength = 32

// SecretVersion represents a single rotated secret version
type SecretVersion struct {
	Secret    string `json:"secret"`
	Timestamp string `json:"timestamp"`
}

// SessionKeyService provides cookie signing keys from Secrets Manager.
// Keys are fetched once per process; restarts pick up rotated keys.
type SessionKeyService struct {
	secrets    *SecretsManagerService
	secretName string

	once sync.Once
	keys [][]byte
	err  error
}

// NewSessionKeyService creates a new session key service
func NewSessionKeyService(secrets *SecretsManagerService, secretName string) *SessionKeyService {
	return &SessionKeyService{
		secrets:    secrets,
		secretName: secretName,
	}
}

// GetSessionKeys returns the session keys, most recent first.
func (s *SessionKeyService) GetSessionKeys(ctx context.Context) ([][]byte, error) {
	s.once.Do(func() {
		s.keys, s.err = s.fetchSessionKeys(ctx)
	})
	return s.keys, s.err
}

func (s *SessionKeyService) fetchSessionKeys(ctx context.Context) ([][]byte, error) {
	logger := zerolog.Ctx(ctx)

	logger.Info().Str("secret_name", s.secretName).Msg("Fetching session keys from Secrets Manager")

	value, err := s.secrets.GetSecret(ctx, s.secretName)
	if err != nil {
		return nil, err
	}

	keys, err := ParseSessionKeys(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", s.secretName, err)
	}

	logger.Info().Int("key_count", len(keys)).Msg("Successfully loaded session keys")
	return keys, nil
}

// ParseSessionKeys decodes a JSON array of base64 secret versions. Versions
// that do not decode to 32 bytes are skipped.
func ParseSessionKeys(ctx context.Context, secret string) ([][]byte, error) {
	logger := zerolog.Ctx(ctx)

	var versions []SecretVersion
	if err := json.Unmarshal([]byte(secret), &versions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret versions: %w", err)
	}

	if len(versions) == 0 {
		return nil, fmt.Errorf("no secret versions found")
	}

	keys := make([][]byte, 0, len(versions))
	for i, version := range versions {
		decoded, err := base64.StdEncoding.DecodeString(version.Secret)
		if err != nil {
			logger.Warn().
				Int("index", i).
				Str("timestamp", version.Timestamp).
				Err(err).
				Msg("Failed to decode secret version, skipping")
			continue
		}

		if len(decoded) != sessionKeyLength {
			logger.Warn().
				Int("index", i).
				Int("length", len(decoded)).
				Str("timestamp", version.Timestamp).
				Msg("Secret version has invalid length, skipping")
			continue
		}

		keys = append(keys, decoded)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid session keys found")
	}

	return keys, nil
}
