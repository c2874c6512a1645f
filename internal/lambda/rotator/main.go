package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/di"
	"github.com/savaki/socialauth/internal/services"
	"github.com/urfave/cli/v2"
)

const (
	stageCurrent = "AWSCURRENT"
	stagePending = "AWSPENDING"
)

// RotationEvent is the payload Secrets Manager sends to a rotation function
type RotationEvent struct {
	Step               string `json:"Step"`
	Token              string `json:"Token"`
	SecretId           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
}

// SecretsAPI is the subset of the Secrets Manager client used by rotation
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// Handler rotates the session cookie signing keys
type Handler struct {
	client SecretsAPI
	now    func() time.Time
}

func NewHandler(client SecretsAPI) *Handler {
	return &Handler{
		client: client,
		now:    time.Now,
	}
}

func newHandlerFromEnv(ctx context.Context) (*Handler, error) {
	cfg, err := di.ProvideAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewHandler(di.ProvideSecretsManagerClient(cfg)), nil
}

func (h *Handler) HandleRotation(ctx context.Context, event RotationEvent) error {
	zerolog.Ctx(ctx).Info().
		Str("step", event.Step).
		Str("secret_id", event.SecretId).
		Msg("Handling rotation step")

	switch event.Step {
	case "createSecret":
		return h.createSecret(ctx, event)
	case "setSecret":
		// keys are read directly by the server, nothing to push downstream
		return nil
	case "testSecret":
		return h.testSecret(ctx, event)
	case "finishSecret":
		return h.finishSecret(ctx, event)
	default:
		return fmt.Errorf("unknown rotation step: %s", event.Step)
	}
}

func (h *Handler) createSecret(ctx context.Context, event RotationEvent) error {
	logger := zerolog.Ctx(ctx)

	var current string
	output, err := h.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(event.SecretId),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to get current secret - starting fresh")
	} else {
		current = aws.ToString(output.SecretString)
	}

	secret, err := services.RotateSessionKeys(ctx, current, h.now())
	if err != nil {
		return err
	}

	_, err = h.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(event.SecretId),
		SecretString:       aws.String(secret),
		ClientRequestToken: aws.String(event.ClientRequestToken),
		VersionStages:      []string{stagePending},
	})
	if err != nil {
		return fmt.Errorf("failed to put secret value: %w", err)
	}

	return nil
}

// testSecret verifies the pending value parses and its newest key is usable
func (h *Handler) testSecret(ctx context.Context, event RotationEvent) error {
	output, err := h.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(event.SecretId),
		VersionStage: aws.String(stagePending),
	})
	if err != nil {
		return fmt.Errorf("failed to get pending secret: %w", err)
	}

	pending := aws.ToString(output.SecretString)

	var versions []services.SecretVersion
	if err := json.Unmarshal([]byte(pending), &versions); err != nil {
		return fmt.Errorf("pending secret is not valid JSON: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("pending secret has no versions")
	}
	if _, err := base64.StdEncoding.DecodeString(versions[0].Secret); err != nil {
		return fmt.Errorf("pending secret is not valid base64: %w", err)
	}

	if _, err := services.ParseSessionKeys(ctx, pending); err != nil {
		return fmt.Errorf("pending secret is unusable: %w", err)
	}
	return nil
}

func (h *Handler) finishSecret(ctx context.Context, event RotationEvent) error {
	_, err := h.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(event.SecretId),
		VersionStage:        aws.String(stageCurrent),
		MoveToVersionId:     aws.String(event.ClientRequestToken),
		RemoveFromVersionId: aws.String(stageCurrent),
	})
	if err != nil {
		return fmt.Errorf("failed to update version stage: %w", err)
	}

	return nil
}

// Rotate runs every rotation step in order, as Secrets Manager would
func (h *Handler) Rotate(ctx context.Context, secretID, clientRequestToken string) error {
	for _, step := range []string{"createSecret", "setSecret", "testSecret", "finishSecret"} {
		event := RotationEvent{
			Step:               step,
			SecretId:           secretID,
			ClientRequestToken: clientRequestToken,
		}
		if err := h.HandleRotation(ctx, event); err != nil {
			return fmt.Errorf("%s step failed: %w", step, err)
		}
	}
	return nil
}

func (h *Handler) CancelRotation(ctx context.Context, secretID, versionID string) error {
	_, err := h.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(secretID),
		VersionStage:        aws.String(stagePending),
		RemoveFromVersionId: aws.String(versionID),
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s stage: %w", stagePending, err)
	}
	return nil
}

func handleRotateCommand(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		handler, err := newHandlerFromEnv(c.Context)
		if err != nil {
			return fmt.Errorf("failed to create handler: %w", err)
		}

		lambda.Start(func(ctx context.Context, event RotationEvent) error {
			return handler.HandleRotation(logger.WithContext(ctx), event)
		})
		return nil
	}

	handler, err := newHandlerFromEnv(c.Context)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	clientRequestToken := fmt.Sprintf("manual-%d", time.Now().Unix())
	if err := handler.Rotate(c.Context, c.String("secret-id"), clientRequestToken); err != nil {
		return err
	}

	logger.Info().Str("secret_id", c.String("secret-id")).Msg("Rotation completed successfully")
	return nil
}

func handleCancelRotationCommand(c *cli.Context) error {
	handler, err := newHandlerFromEnv(c.Context)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	if err := handler.CancelRotation(c.Context, c.String("secret-id"), c.String("version-id")); err != nil {
		return err
	}

	zerolog.Ctx(c.Context).Info().Str("secret_id", c.String("secret-id")).Msg("Cancelled pending rotation")
	return nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "rotator").Logger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:           "rotator",
		Usage:          "Secrets Manager rotation function for session cookie keys",
		DefaultCommand: "rotate",
		Commands: []*cli.Command{
			{
				Name:  "rotate",
				Usage: "Manually trigger a rotation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret-id",
						Usage:    "Secret ID to rotate",
						Required: os.Getenv("AWS_LAMBDA_RUNTIME_API") == "",
						EnvVars:  []string{"SECRET_ID"},
					},
				},
				Action: handleRotateCommand,
			},
			{
				Name:  "cancel-rotation",
				Usage: "Cancel a pending rotation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret-id",
						Usage:    "Secret ID with pending rotation",
						Required: true,
						EnvVars:  []string{"SECRET_ID"},
					},
					&cli.StringFlag{
						Name:     "version-id",
						Usage:    "Version ID of the pending rotation to cancel",
						Required: true,
					},
				},
				Action: handleCancelRotationCommand,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
