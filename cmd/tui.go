package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/desertthunder/tixd/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/tixd-tui.log"

// TUI launches the interactive task monitor against the configured server.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.Health(ctx); err != nil {
		return fmt.Errorf("server at %s is not reachable: %w", r.serverURL, err)
	}

	restore, err := r.redirectLogs()
	if err != nil {
		return err
	}
	defer restore()

	model := ui.NewModel(ctx, ui.NewClientSource(r.client))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// redirectLogs sends logs to a file while a full-screen program owns the terminal.
func (r *Runner) redirectLogs() (func(), error) {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}

	previous := r.logger
	fileLogger.SetLevel(previous.GetLevel())
	r.SetLogger(fileLogger)
	return func() { r.SetLogger(previous) }, nil
}
