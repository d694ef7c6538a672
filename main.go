package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/pool-integration/cmd"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "pool-integration",
		Usage:   "bridge a pool controller REST API to home automation nodes",
		Version: version,
		Action:  cmd.PoolCommand,
		Commands: []*cli.Command{
			{
				Name:   "hash-token",
				Usage:  "hash an API token for --api-token-hash",
				Action: cmd.HashTokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token",
						Usage: "token to hash, generated when empty",
					},
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "pool controller API base url, e.g. http://localhost:3000",
				EnvVars: []string{"API_URL"},
			},
			&cli.StringFlag{
				Name:    "circuits-not-used",
				Usage:   "comma separated circuit ids to ignore",
				EnvVars: []string{"CIRCUITS_NOT_USED"},
			},
			&cli.StringFlag{
				Name:    "circuit-control",
				Usage:   "toggle or set",
				EnvVars: []string{"CIRCUIT_CONTROL"},
				Value:   "toggle",
			},
			&cli.IntFlag{
				Name:    "pool-circuit",
				EnvVars: []string{"POOL_CIRCUIT"},
			},
			&cli.IntFlag{
				Name:    "spa-circuit",
				EnvVars: []string{"SPA_CIRCUIT"},
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"POLL_INTERVAL"},
				Value:   10 * time.Second,
			},
			&cli.DurationFlag{
				Name:    "long-poll-interval",
				EnvVars: []string{"LONG_POLL_INTERVAL"},
				Value:   5 * time.Minute,
			},
			&cli.DurationFlag{
				Name:    "http-timeout",
				EnvVars: []string{"HTTP_TIMEOUT"},
				Value:   10 * time.Second,
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-client-id",
				EnvVars: []string{"MQTT_CLIENT_ID"},
				Value:   "pool-integration",
			},
			&cli.StringFlag{
				Name:    "mqtt-prefix",
				EnvVars: []string{"MQTT_PREFIX"},
				Value:   "pool",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
				Value:   "",
			},
			&cli.DurationFlag{
				Name:    "history-retention",
				EnvVars: []string{"HISTORY_RETENTION"},
				Value:   8 * 24 * time.Hour,
			},
			&cli.StringFlag{
				Name:    "listen-addr",
				EnvVars: []string{"LISTEN_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "api-token-hash",
				EnvVars: []string{"API_TOKEN_HASH"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
