// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for the database and config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the configured database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config.toml populated with defaults",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path to write (defaults to --config)",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// serveCommand runs the task API server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the task API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Override server.host",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Override server.port",
			},
			&cli.BoolFlag{
				Name:  "simulate",
				Usage: "Fake purchases locally instead of calling the automation service",
			},
			&cli.BoolFlag{
				Name:  "no-db",
				Usage: "Keep task state in memory only",
			},
		},
		Action: r.Serve,
	}
}

// taskCommand talks to a running server about tasks.
func taskCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "task",
		Aliases: []string{"t"},
		Usage:   "Submit and inspect ticket tasks",
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Submit a job read from a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Job JSON file, or - for stdin",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Follow the task after submitting",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TaskSubmit,
			},
			{
				Name:  "status",
				Usage: "Show the latest state of a task",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TaskStatus,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List the tasks a server holds",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tasks with this status",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: table, json, csv",
						Value: "table",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.TaskList,
			},
			{
				Name:  "watch",
				Usage: "Follow a task's progress live",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "plain",
						Usage: "Print one line per transition instead of the interactive view",
					},
				},
				Action: r.TaskWatch,
			},
			{
				Name:  "logs",
				Usage: "Show the stored transition log of a task (sqlite only)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "report",
						Aliases: []string{"r"},
						Usage:   "Write a Markdown report to this path instead",
					},
				},
				Action: r.TaskLogs,
			},
		},
	}
}

// configCommand inspects the effective configuration.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration with credentials removed",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON instead of TOML",
					},
				},
				Action: r.ConfigShow,
			},
		},
	}
}

// apiCommand handles raw calls against a running server
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the tixd server API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing and following tasks.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive task monitor",
		Action:  r.TUI,
	}
}
