package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tixd/internal/formatter"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/repositories"
	"github.com/desertthunder/tixd/internal/services"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/desertthunder/tixd/internal/ui"
	"github.com/urfave/cli/v3"
)

// TaskSubmit reads a job file and submits it to the server.
func (r *Runner) TaskSubmit(ctx context.Context, cmd *cli.Command) error {
	job, err := readJob(cmd.String("file"), os.Stdin)
	if err != nil {
		return err
	}

	resp, err := r.client.Submit(ctx, job)
	if err != nil {
		return err
	}
	r.logger.Debug("task submitted", "task_id", resp.TaskID, "accounts", len(job.Accounts))

	if cmd.Bool("json") {
		if err := r.writeJSON(resp, false); err != nil {
			return err
		}
	} else {
		r.writePlain("✓ Task %s created\n", resp.TaskID)
	}

	if cmd.Bool("watch") {
		return r.watch(ctx, resp.TaskID, cmd.Bool("json"))
	}
	return nil
}

// TaskStatus prints the latest state of a task.
func (r *Runner) TaskStatus(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("id")
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	state, err := r.client.Status(ctx, taskID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(state, true)
	}
	return formatter.WriteDetail(r.output, state)
}

// TaskList prints or exports the tasks held by the server.
func (r *Runner) TaskList(ctx context.Context, cmd *cli.Command) error {
	states, err := r.client.List(ctx)
	if err != nil {
		return err
	}

	if status := cmd.String("status"); status != "" {
		if !models.Status(status).Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
		}
		states = slices.DeleteFunc(states, func(s models.TaskState) bool { return string(s.Status) != status })
	}

	format := cmd.String("format")
	if path := cmd.String("output"); path != "" {
		written, err := exportTasks(states, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d tasks to %s\n", len(states), written)
	}

	switch format {
	case "json":
		return r.writeJSON(states, true)
	case "csv":
		data, err := formatter.ExportToCSV(states)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	case "table", "":
		if len(states) == 0 {
			return r.writePlain("No tasks\n")
		}
		return formatter.WriteTable(r.output, states)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// TaskWatch follows a task until it finishes.
func (r *Runner) TaskWatch(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("id")
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	return r.watch(ctx, taskID, cmd.Bool("plain"))
}

// TaskLogs prints the transition log stored in the local SQLite database.
func (r *Runner) TaskLogs(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("id")
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	if r.config.Database.Driver != shared.DriverSQLite {
		return fmt.Errorf("%w: task logs for driver %s", shared.ErrNotImplemented, r.config.Database.Driver)
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	repo := repositories.NewTaskRepository(db)
	record, err := repo.GetByTaskID(ctx, taskID)
	if errors.Is(err, shared.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return err
	}

	logs, err := repo.Logs(ctx, taskID)
	if err != nil {
		return err
	}

	history := make([]models.TaskState, len(logs))
	for i, l := range logs {
		history[i] = models.TaskState{TaskID: l.TaskID, Status: l.Status, Progress: l.Progress, Message: l.Message, UpdatedAt: l.CreatedAt}
	}

	if path := cmd.String("report"); path != "" {
		written, err := formatter.WriteMarkdownExport(record.State(), history, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Report written to %s\n", written)
	}

	r.writePlainHeader(taskID)
	for _, l := range logs {
		r.writePlain("%s  %-5s  %-10s %3d%%  %s\n", l.CreatedAt.Local().Format("15:04:05"), l.Level, l.Status, l.Progress, l.Message)
	}
	return nil
}

// watch follows taskID with the interactive monitor, or line by line when plain is set.
func (r *Runner) watch(ctx context.Context, taskID string, plain bool) error {
	if plain {
		return r.watchPlain(ctx, taskID)
	}

	restore, err := r.redirectLogs()
	if err != nil {
		return err
	}
	defer restore()

	model := ui.NewWatchModel(ctx, ui.NewClientSource(r.client), taskID)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	if err := model.Err(); err != nil {
		return err
	}
	if model.State().Status == models.StatusFailed {
		return fmt.Errorf("task %s failed: %s", taskID, model.State().Message)
	}
	return nil
}

func (r *Runner) watchPlain(ctx context.Context, taskID string) error {
	w, err := r.client.Watch(ctx, taskID)
	if err != nil {
		return err
	}
	defer w.Close()

	var last models.TaskState
	for {
		state, err := w.Next()
		if services.IsStreamEnd(err) {
			break
		}
		if err != nil {
			if last.Status.IsTerminal() {
				break
			}
			return err
		}
		last = state
		r.writePlain("[%3d%%] %-10s %s\n", state.Progress, state.Status, state.Message)
	}

	switch last.Status {
	case models.StatusFailed:
		return fmt.Errorf("task %s failed: %s", taskID, last.Message)
	case models.StatusCompleted:
		return nil
	}
	return fmt.Errorf("%w: %s is %s", shared.ErrStreamEnded, taskID, last.Status)
}

func readJob(path string, stdin io.Reader) (*models.Job, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: --file", shared.ErrMissingArgument)
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: job is not valid JSON: %v", shared.ErrInvalidInput, err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func exportTasks(states []models.TaskState, format, path string) (string, error) {
	switch format {
	case "json":
		return formatter.WriteJSONExport(states, path)
	case "csv":
		return formatter.WriteCSVExport(states, path)
	case "table", "":
		return formatter.WriteTextExport(states, path)
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}
