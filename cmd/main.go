package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/tixd/internal/server"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{
		Config: shared.DefaultConfig(),
		Logger: logger,
	})

	app := &cli.Command{
		Name:    "tixd",
		Usage:   "Run ticket purchase tasks and follow their progress live",
		Version: server.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of a running tixd server",
				Sources: cli.EnvVars("TIXD_SERVER"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before:   runner.Before,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented", "err", err)
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
