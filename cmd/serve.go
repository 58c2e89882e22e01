package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/tixd/internal/repositories"
	"github.com/desertthunder/tixd/internal/server"
	"github.com/desertthunder/tixd/internal/services"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/desertthunder/tixd/internal/tasks"
	"github.com/urfave/cli/v3"
)

const (
	automationModeHTTP     = "http"
	automationModeSimulate = "simulate"

	simulateDelay        = 800 * time.Millisecond
	serverShutdownWindow = 5 * time.Second
)

// Serve runs the task API server until SIGINT or SIGTERM, then drains running tasks for up to
// executor.shutdown_timeout.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = int(port)
	}
	if cmd.Bool("simulate") {
		config.Automation.Mode = automationModeSimulate
	}

	automation, captcha, err := r.automation()
	if err != nil {
		return err
	}
	if svc, ok := automation.(services.Service); ok {
		r.probe(ctx, svc)
	}

	var store tasks.Persistence
	if !cmd.Bool("no-db") {
		s, closeStore, err := r.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		store = s
	}

	orch := tasks.NewOrchestrator(automation, store, tasks.OptionsFromConfig(config, r.logger))
	srv := server.New(config, orch, captcha, r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	r.logger.Info("tixd started", "addr", srv.Addr(), "automation", config.Automation.Mode, "database", config.Database.Driver)

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr == nil {
			return nil
		}
		r.logger.Error("server stopped", "err", serveErr)
	case <-ctx.Done():
		r.logger.Info("shutting down", "active", orch.Active())
	}

	return errors.Join(serveErr, r.shutdown(orch, srv, config.Executor.ShutdownTimeout))
}

// shutdown drains the orchestrator first so the hub closes every open stream, then stops the listener.
func (r *Runner) shutdown(orch *tasks.Orchestrator, srv *server.Server, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		r.logger.Warn("running tasks were cancelled", "err", err)
	}

	srvCtx, srvCancel := context.WithTimeout(context.Background(), serverShutdownWindow)
	defer srvCancel()
	if err := srv.Shutdown(srvCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	r.logger.Info("shutdown complete")
	return nil
}

// probe logs a warning when svc is unreachable. Tasks still run and fail per account.
func (r *Runner) probe(ctx context.Context, svc services.Service) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := svc.Health(ctx); err != nil {
		r.logger.Warn("service unreachable at startup", "service", svc.Name(), "err", err)
		return
	}
	r.logger.Debug("service reachable", "service", svc.Name())
}

// automation picks the purchase backend for automation.mode. The captcha proxy is only available in http mode.
func (r *Runner) automation() (tasks.Automation, server.CaptchaSolver, error) {
	switch r.config.Automation.Mode {
	case automationModeHTTP, "":
		svc := services.NewAutomationService(r.config.Automation.BaseURL, r.config.Automation.Timeout)
		return svc, svc, nil
	case automationModeSimulate:
		r.logger.Warn("simulating purchases, no tickets will be bought")
		return &services.SimulatedAutomation{Delay: simulateDelay}, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown automation mode %q", shared.ErrInvalidConfig, r.config.Automation.Mode)
	}
}

// openStore connects the configured database and prepares its schema.
func (r *Runner) openStore(ctx context.Context) (tasks.Persistence, func(), error) {
	config := r.config.Database

	switch config.Driver {
	case shared.DriverPostgres:
		pool, err := shared.NewPostgresPool(ctx, config.URL, config.MaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		store := repositories.NewPostgresStore(pool, r.logger)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		db, err := shared.NewDatabase(config.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, config.MaxOpenConns, config.MaxIdleConns)
		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repositories.NewTaskStore(db, r.logger), func() { db.Close() }, nil
	}
}
