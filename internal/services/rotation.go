package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// MaxSessionKeyVersions is how many keys survive a rotation. Cookies signed
// with an older key stop validating once it falls off the list.
const MaxSessionKeyVersions = 3

// GenerateSessionKey returns a new base64 encoded 256-bit key
func GenerateSessionKey() (string, error) {
	b := make([]byte, sessionKeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// RotateSessionKeys prepends a fresh key to the versions held in current and
// returns the new secret value. Invalid or undecodable versions are dropped.
func RotateSessionKeys(ctx context.Context, current string, now time.Time) (string, error) {
	logger := zerolog.Ctx(ctx)

	key, err := GenerateSessionKey()
	if err != nil {
		return "", err
	}

	versions := []SecretVersion{{
		Secret:    key,
		Timestamp: now.UTC().Format(time.RFC3339),
	}}

	var existing []SecretVersion
	switch {
	case current == "":
		logger.Warn().Msg("Secret is empty - starting fresh")
	case json.Unmarshal([]byte(current), &existing) != nil:
		logger.Warn().Msg("Current secret is not valid JSON - overwriting with fresh secret")
	default:
		for i, v := range existing {
			decoded, err := base64.StdEncoding.DecodeString(v.Secret)
			if err != nil || len(decoded) != sessionKeyLength {
				logger.Warn().Int("index", i).Msg("Discarding invalid session key version")
				continue
			}
			versions = append(versions, v)
		}
	}

	if len(versions) > MaxSessionKeyVersions {
		versions = versions[:MaxSessionKeyVersions]
	}

	data, err := json.Marshal(versions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret: %w", err)
	}

	logger.Info().Int("version_count", len(versions)).Msg("Rotated session keys")
	return string(data), nil
}
