package main

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/tixd/internal/repositories"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the configured database: migrations for SQLite, schema creation for Postgres.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.config

	switch config.Database.Driver {
	case shared.DriverPostgres:
		r.logger.Info("initializing postgres", "url", shared.ObfuscateURL(config.Database.URL))

		pool, err := shared.NewPostgresPool(ctx, config.Database.URL, config.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := repositories.NewPostgresStore(pool, r.logger).EnsureSchema(ctx); err != nil {
			return err
		}
		r.logger.Info("setup complete for postgres")
		return nil

	default:
		r.logger.Info("initializing database", "path", config.Database.Path)

		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()

		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

		r.logger.Info("running database migrations")
		if err := shared.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		r.logger.Infof("setup complete for database: %v", config.Database.Path)
		return nil
	}
}

// SetupConfig writes the default configuration file.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = r.configPath
	}
	if path == "" {
		return fmt.Errorf("%w: --output", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return r.writePlain("✓ Wrote %s\n", path)
}

// ConfigShow prints the effective configuration with credentials removed.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	redacted := r.config.Redacted()
	if cmd.Bool("json") {
		return r.writeJSON(redacted, true)
	}

	if err := toml.NewEncoder(r.output).Encode(redacted); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
