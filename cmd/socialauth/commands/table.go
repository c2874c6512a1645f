package commands

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/savaki/socialauth/internal/dao/sessiondao"
	"github.com/savaki/socialauth/internal/di"
	"github.com/urfave/cli/v2"
)

// CreateTableCommand returns the create-table command
func CreateTableCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "create-table",
		Usage: "Create the DynamoDB session table if it does not exist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "table",
				Usage: "Table name (defaults to {env}-socialauth--sessions)",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Session lifetime",
				Value: 7 * 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}

			tableName := c.String("table")
			if tableName == "" {
				tableName = sessiondao.TableName(c.String("env"))
			}

			client := di.MustGet[*dynamodb.Client](container)
			if err := sessiondao.New(client, tableName, c.Duration("ttl")).CreateTableIfNotExists(c.Context); err != nil {
				return err
			}

			logger.Info().Str("table", tableName).Msg("Session table ready")
			return nil
		},
	}
}
