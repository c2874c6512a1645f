package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/auth"
	"github.com/savaki/socialauth/internal/di"
	"github.com/urfave/cli/v2"
)

type Handler struct {
	authenticator *auth.Authenticator
	schema        *graphql.Schema
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// loggingMiddleware logs details about each request and response
func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := logger.WithContext(r.Context())
			r = r.WithContext(ctx)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Incoming request")

			next.ServeHTTP(rw, r)

			zerolog.Ctx(ctx).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", rw.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// stripEnvPrefixMiddleware removes the /{env} prefix from request paths
func stripEnvPrefixMiddleware(env string, next http.Handler) http.Handler {
	if env == "" {
		return next
	}

	prefix := "/" + env
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}

		next.ServeHTTP(w, r)
	})
}

func NewHandler(container di.Container) *Handler {
	return &Handler{
		authenticator: di.MustGet[*auth.Authenticator](container),
		schema:        di.MustGet[*graphql.Schema](container),
	}
}

func setupContainer(env, callbackURL string, disableAuth bool, propertiesFile string) (di.Container, error) {
	return di.New(env,
		di.WithCallbackURL(callbackURL),
		di.WithDisableAuth(disableAuth),
		di.WithPropertiesFile(propertiesFile),
		di.WithProviders(
			di.ProvideLogger,
			di.ProvideGraphQL,
		),
		di.WithProviders(di.Auth...),
	)
}

// handleMe returns the profile of the signed in user
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok || session.Profile == nil {
		h.errorResponse(w, http.StatusNotFound, "no authenticated session")
		return
	}
	h.jsonResponse(w, http.StatusOK, session.Profile)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (h *Handler) jsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// errorResponse writes an error JSON response
func (h *Handler) errorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.jsonResponse(w, statusCode, ErrorResponse{Error: message})
}

// setupRouter configures all HTTP routes
func (h *Handler) setupRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)

	// Auth routes (no authentication required)
	mux.HandleFunc("GET /login", h.authenticator.HandleLogin)
	mux.HandleFunc("GET /logout", h.authenticator.HandleLogout)
	mux.HandleFunc("GET /oauth/callback", h.authenticator.HandleCallback)

	// API routes return 403 on failure
	requireAuthAPI := h.authenticator.RequireAuth(false)
	mux.Handle("POST /status", requireAuthAPI(http.HandlerFunc(h.authenticator.HandleUpdateStatus)))
	mux.Handle("GET /contacts", requireAuthAPI(http.HandlerFunc(h.authenticator.HandleContacts)))
	mux.Handle("GET /me", requireAuthAPI(http.HandlerFunc(h.handleMe)))

	// GraphQL resolves signed out queries, resolvers enforce their own auth
	mux.Handle("POST /graphql", h.authenticator.LoadSession(&relay.Handler{Schema: h.schema}))

	// Documents redirect to /login
	requireAuth := h.authenticator.RequireAuth(true)
	mux.Handle("GET /{$}", requireAuth(http.HandlerFunc(h.handleMe)))

	return mux
}

// buildCallbackURL constructs the OAuth callback URL based on environment
func buildCallbackURL(env string, customDomain string, apiGatewayID string, port string) string {
	if port != "" {
		return fmt.Sprintf("http://localhost:%s/oauth/callback", port)
	}

	if customDomain != "" {
		return fmt.Sprintf("https://%s/oauth/callback", customDomain)
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	if apiGatewayID != "" && env != "" {
		return fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/%s/oauth/callback", apiGatewayID, region, env)
	}

	return "http://localhost:8080/oauth/callback"
}

// serveAction starts a local HTTP server for testing
func serveAction(c *cli.Context) error {
	port := c.String("port")
	addr := fmt.Sprintf(":%s", port)
	env := c.String("env")
	disableAuth := c.Bool("disable-auth")
	if c.Bool("disable-ssm") {
		_ = os.Setenv("DISABLE_SSM", "true")
	}

	callbackURL := buildCallbackURL(env, "", "", port)

	container, err := setupContainer(env, callbackURL, disableAuth, c.String("properties"))
	if err != nil {
		return fmt.Errorf("failed to setup DI container: %w", err)
	}

	logger := di.MustGet[zerolog.Logger](container)
	if disableAuth {
		logger.Warn().Msg("Authentication is DISABLED - this should only be used for development")
	}

	router := NewHandler(container).setupRouter()

	logger.Info().
		Str("addr", addr).
		Str("env", env).
		Str("callback_url", callbackURL).
		Bool("disable_auth", disableAuth).
		Msg("Starting HTTP server")

	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(logger)(stripEnvPrefixMiddleware(env, router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}

func lambdaMain(logger zerolog.Logger) {
	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		logger.Error().Msg("ENV or ENVIRONMENT variable is required")
		os.Exit(1)
	}

	disableAuth := os.Getenv("DISABLE_AUTH") == "true"

	// Config is loaded once up front to derive the callback URL
	ctx := logger.WithContext(context.Background())
	awsConfig, err := di.ProvideAWSConfig(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load AWS config")
		os.Exit(1)
	}

	paramStore, err := di.ProvideParameterStore(ctx, di.ProvideSSMClient(awsConfig), env, "")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create parameter store")
		os.Exit(1)
	}

	appConfig, err := paramStore.GetConfig(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	callbackURL := buildCallbackURL(env, appConfig.CustomDomain, appConfig.APIGatewayID, "")

	logger.Info().
		Str("env", env).
		Str("provider", appConfig.Provider).
		Str("callback_url", callbackURL).
		Bool("disable_auth", disableAuth).
		Msg("Initializing Lambda handler")

	container, err := setupContainer(env, callbackURL, disableAuth, "")
	if err != nil {
		logger.Error().Err(err).Msg("Failed to setup DI container")
		os.Exit(1)
	}

	router := NewHandler(container).setupRouter()
	httpHandler := loggingMiddleware(logger)(stripEnvPrefixMiddleware(env, router))

	lambda.Start(httpadapter.NewV2(httpHandler).ProxyWithContext)
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "server").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		lambdaMain(logger)
		return
	}

	app := &cli.App{
		Name:  "server",
		Usage: "social login web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name (for stripping path prefix)",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start local HTTP server for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "Port to listen on",
						Value: "8080",
					},
					&cli.StringFlag{
						Name:    "properties",
						Usage:   "Load configuration from a .properties file",
						EnvVars: []string{"PROPERTIES_FILE"},
					},
					&cli.BoolFlag{
						Name:    "disable-auth",
						Usage:   "Disable authentication (for local development only)",
						EnvVars: []string{"DISABLE_AUTH"},
					},
					&cli.BoolFlag{
						Name:    "disable-ssm",
						Usage:   "Disable AWS Systems Manager Parameter Store (use environment variables)",
						EnvVars: []string{"DISABLE_SSM"},
					},
				},
				Action: serveAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
