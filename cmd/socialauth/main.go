package main

import (
	"context"
	"os"

	"github.com/savaki/socialauth/cmd/socialauth/commands"
	"github.com/savaki/socialauth/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "socialauth",
		Usage: "social login toolkit",
		Description: `Drives a social login from the command line.

login-url starts a login and prints the provider URL to open in a browser.
verify completes it with the code the provider returned to the callback.
The session backend must persist between commands (redis or dynamodb).`,
		Flags:    commands.GlobalFlags(),
		Commands: []*cli.Command{
			commands.LoginURLCommand(&logger),
			commands.VerifyCommand(&logger),
			commands.PostStatusCommand(&logger),
			commands.ContactsCommand(&logger),
			commands.CreateTableCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
