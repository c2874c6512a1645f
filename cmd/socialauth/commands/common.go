package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/savaki/socialauth/internal/auth"
	"github.com/savaki/socialauth/internal/di"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// GlobalFlags returns the flags shared by every command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env",
			Usage:   "Environment name",
			Value:   "dev",
			EnvVars: []string{"ENV", "ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "properties",
			Usage:   "Load configuration from a .properties file",
			EnvVars: []string{"PROPERTIES_FILE"},
		},
		&cli.StringFlag{
			Name:    "callback-url",
			Usage:   "Redirect URI registered with the provider",
			Value:   "http://localhost:8080/oauth/callback",
			EnvVars: []string{"CALLBACK_URL"},
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output format (json or yaml)",
			Value: formatJSON,
		},
	}
}

func newContainer(c *cli.Context) (di.Container, error) {
	container, err := di.New(c.String("env"),
		di.WithPropertiesFile(c.String("properties")),
		di.WithCallbackURL(c.String("callback-url")),
		di.WithProviders(di.ProvideLogger),
		di.WithProviders(di.Auth...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DI container: %w", err)
	}
	return container, nil
}

// printOutput writes v to w in the requested format
func printOutput(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		return enc.Close()
	case formatJSON, "":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// callbackParams adapts the query parameters a provider sent to the
// callback URL to auth.Request.
type callbackParams url.Values

func (p callbackParams) FormValue(key string) string {
	return url.Values(p).Get(key)
}

var _ auth.Request = callbackParams{}

// parseCallback accepts either the full callback URL or a bare code.
func parseCallback(callback, code string) (callbackParams, error) {
	if callback == "" {
		return callbackParams{"code": {code}}, nil
	}

	u, err := url.Parse(callback)
	if err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	values := u.Query()
	if code != "" {
		values.Set("code", code)
	}
	return callbackParams(values), nil
}
