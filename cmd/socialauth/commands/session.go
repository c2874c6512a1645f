package commands

import (
	"context"
	"crypto/subtle"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/auth"
	"github.com/savaki/socialauth/internal/authz"
	"github.com/savaki/socialauth/internal/di"
	errs "github.com/savaki/socialauth/internal/errors"
	"github.com/savaki/socialauth/internal/models"
	"github.com/savaki/socialauth/internal/store"
	"github.com/urfave/cli/v2"
)

type sessionHandler struct {
	provider    auth.Provider
	sessions    auth.SessionStore
	authorizer  *authz.Authorizer
	callbackURL string
}

func newSessionHandler(c *cli.Context) (*sessionHandler, error) {
	container, err := newContainer(c)
	if err != nil {
		return nil, err
	}

	template := di.MustGet[*auth.Template](container)
	if template.Provider() == nil {
		return nil, fmt.Errorf("no identity provider configured")
	}

	sessions := di.MustGet[auth.SessionStore](container)
	if err := requirePersistentStore(sessions); err != nil {
		return nil, err
	}

	return &sessionHandler{
		provider:    template.Provider(),
		sessions:    sessions,
		authorizer:  di.MustGet[*authz.Authorizer](container),
		callbackURL: c.String("callback-url"),
	}, nil
}

// requirePersistentStore rejects the in-memory store. Each CLI invocation is
// its own process, so a session saved by login-url would be gone by verify.
func requirePersistentStore(sessions auth.SessionStore) error {
	if _, ok := sessions.(*store.Memory); ok {
		return fmt.Errorf("session commands need a persistent session store: set SESSION_BACKEND to redis or dynamodb")
	}
	return nil
}

type loginResult struct {
	SessionID string `json:"session_id" yaml:"session_id"`
	State     string `json:"state" yaml:"state"`
	URL       string `json:"url" yaml:"url"`
}

// loginURL starts a login and persists the pending session
func (h *sessionHandler) loginURL(ctx context.Context) (*loginResult, error) {
	session, err := models.NewSession(h.provider.GetProviderType())
	if err != nil {
		return nil, err
	}

	authURL, err := h.provider.GetLoginRedirectURL(session, h.callbackURL)
	if err != nil {
		return nil, err
	}

	if err := h.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &loginResult{
		SessionID: session.ID,
		State:     session.State,
		URL:       authURL,
	}, nil
}

// verify completes a pending login with the parameters sent to the callback
func (h *sessionHandler) verify(ctx context.Context, sessionID string, params callbackParams) (*models.Profile, error) {
	session, err := h.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Stage != models.StageRedirectIssued {
		return nil, errs.New(errs.KindInvalidRequest, "verify", errs.ErrSessionNotFound)
	}

	if state := params.FormValue("state"); state != "" {
		if subtle.ConstantTimeCompare([]byte(state), []byte(session.State)) != 1 {
			return nil, errs.New(errs.KindInvalidRequest, "verify", errs.ErrStateMismatch)
		}
	}

	profile, err := h.provider.VerifyResponse(ctx, session, params)
	if err != nil {
		return nil, err
	}

	if err := h.authorizer.Authorize(ctx, authz.Profile{
		ID:       profile.ValidatedID,
		Provider: profile.ProviderID,
		Name:     profile.FullName,
		Email:    profile.Email,
	}); err != nil {
		_ = h.sessions.Delete(ctx, session.ID)
		return nil, fmt.Errorf("access denied: %w", err)
	}

	if err := h.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return profile, nil
}

func (h *sessionHandler) authenticated(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := h.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.New(errs.KindInvalidRequest, "session", errs.ErrSessionNotFound)
	}
	if !session.IsAuthenticated() {
		return nil, errs.New(errs.KindInvalidRequest, "session", errs.ErrNotAuthenticated)
	}
	return session, nil
}

func (h *sessionHandler) postStatus(ctx context.Context, sessionID, message string) error {
	session, err := h.authenticated(ctx, sessionID)
	if err != nil {
		return err
	}
	return h.provider.UpdateStatus(ctx, session, message)
}

func (h *sessionHandler) contacts(ctx context.Context, sessionID string) ([]models.Profile, error) {
	session, err := h.authenticated(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return h.provider.GetContactList(ctx, session)
}

var sessionIDFlag = &cli.StringFlag{
	Name:     "session-id",
	Usage:    "Session id printed by login-url",
	Required: true,
}

// LoginURLCommand returns the login-url command
func LoginURLCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "login-url",
		Usage: "Start a login and print the provider URL",
		Action: func(c *cli.Context) error {
			handler, err := newSessionHandler(c)
			if err != nil {
				return err
			}

			result, err := handler.loginURL(c.Context)
			if err != nil {
				return err
			}

			logger.Info().Str("session_id", result.SessionID).Msg("Login started")
			return printOutput(os.Stdout, c.String("output"), result)
		},
	}
}

// VerifyCommand returns the verify command
func VerifyCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Complete a login with the code returned to the callback",
		Flags: []cli.Flag{
			sessionIDFlag,
			&cli.StringFlag{
				Name:  "code",
				Usage: "Authorization code from the callback",
			},
			&cli.StringFlag{
				Name:  "callback",
				Usage: "Full callback URL the provider redirected to",
			},
		},
		Action: func(c *cli.Context) error {
			if c.String("code") == "" && c.String("callback") == "" {
				return fmt.Errorf("one of --code or --callback is required")
			}

			params, err := parseCallback(c.String("callback"), c.String("code"))
			if err != nil {
				return err
			}

			handler, err := newSessionHandler(c)
			if err != nil {
				return err
			}

			profile, err := handler.verify(c.Context, c.String("session-id"), params)
			if err != nil {
				return err
			}

			logger.Info().
				Str("session_id", c.String("session-id")).
				Str("validated_id", profile.ValidatedID).
				Msg("User authenticated successfully")
			return printOutput(os.Stdout, c.String("output"), profile)
		},
	}
}

// PostStatusCommand returns the post-status command
func PostStatusCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "post-status",
		Usage: "Post a status message for an authenticated session",
		Flags: []cli.Flag{
			sessionIDFlag,
			&cli.StringFlag{
				Name:     "message",
				Usage:    "Status message",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			handler, err := newSessionHandler(c)
			if err != nil {
				return err
			}

			if err := handler.postStatus(c.Context, c.String("session-id"), c.String("message")); err != nil {
				return err
			}

			logger.Info().Str("session_id", c.String("session-id")).Msg("Status updated")
			return printOutput(os.Stdout, c.String("output"), map[string]bool{"posted": true})
		},
	}
}

// ContactsCommand returns the contacts command
func ContactsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "contacts",
		Usage: "List contacts for an authenticated session",
		Flags: []cli.Flag{sessionIDFlag},
		Action: func(c *cli.Context) error {
			handler, err := newSessionHandler(c)
			if err != nil {
				return err
			}

			contacts, err := handler.contacts(c.Context, c.String("session-id"))
			if err != nil {
				return err
			}

			logger.Debug().Int("count", len(contacts)).Msg("Fetched contacts")
			return printOutput(os.Stdout, c.String("output"), contacts)
		},
	}
}
