// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// globalFlags are accepted by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("RECENTS_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Path to a .env file loaded before configuration",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

// runCommand performs one sync run.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"sync"},
		Usage:   "Sync the rolling playlists with your liked songs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Report planned changes without writing playlists or the id cache",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run record as JSON instead of progress",
			},
		},
		Action: r.RunSync,
	}
}

// planCommand shows how the library would be split.
func planCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show which liked songs each playlist would hold",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Plan,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify in the browser and store the token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the callback",
						Value: defaultLoginTimeout,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored token state without refreshing it",
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Force a token refresh",
				Action: r.AuthRefresh,
			},
		},
	}
}

// secretsCommand manages records in the credential store
func secretsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Manage records in the credential store",
		Commands: []*cli.Command{
			{
				Name:  "set-credentials",
				Usage: "Store the Spotify application client id and secret",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "client-id",
						Usage:    "Spotify application client id",
						Sources:  cli.EnvVars("SPOTIFY_CLIENT_ID"),
						Required: true,
					},
					&cli.StringFlag{
						Name:     "client-secret",
						Usage:    "Spotify application client secret",
						Sources:  cli.EnvVars("SPOTIFY_CLIENT_SECRET"),
						Required: true,
					},
				},
				Action: r.SecretsSetCredentials,
			},
			{
				Name:  "show-playlists",
				Usage: "Print the cached playlist name to id mapping",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SecretsShowPlaylists,
			},
			{
				Name:   "clear-playlists",
				Usage:  "Forget cached playlist ids so the next run resolves them by name",
				Action: r.SecretsClearPlaylists,
			},
		},
	}
}

// historyCommand shows recorded runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of runs to show (0 for all)",
				Value:   10,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (text, csv, markdown, json)",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show one run in detail (latest by default)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "prune",
				Usage: "Delete all but the newest runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "keep",
						Usage: "Number of runs to keep",
						Value: 100,
					},
				},
				Action: r.HistoryPrune,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Where to write the file",
						Value: "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the history database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the newest migration after migrating",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "check",
				Usage:  "Validate configuration and report the credential store state",
				Action: r.SetupCheck,
			},
		},
	}
}
