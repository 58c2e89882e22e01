package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

// TaskStore implements tasks.Persistence using [TaskRepository] and [AccountRepository].
//
// The first account of a job is linked to the task row, creating its user_accounts row on first use.
// Every transition updates the task row and appends to task_logs.
type TaskStore struct {
	tasks    *TaskRepository
	accounts *AccountRepository
	logger   *log.Logger
}

// NewTaskStore creates a new TaskStore over db. A nil logger discards output.
func NewTaskStore(db *sql.DB, logger *log.Logger) *TaskStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &TaskStore{
		tasks:    NewTaskRepository(db),
		accounts: NewAccountRepository(db),
		logger:   logger,
	}
}

// Tasks returns the underlying task repository.
func (s *TaskStore) Tasks() *TaskRepository {
	return s.tasks
}

// CreateInitial inserts the task row for a newly submitted job.
func (s *TaskStore) CreateInitial(ctx context.Context, taskID string, job models.Job, state models.TaskState) error {
	record := models.NewTaskRecord(0, taskID, job)
	record.ApplyState(state)

	if len(job.Accounts) > 0 && job.Accounts[0].ID != "" {
		account, err := s.accounts.FindOrCreate(ctx, job.Accounts[0])
		if err != nil {
			return fmt.Errorf("failed to resolve account %s: %w", job.Accounts[0].ID, err)
		}
		record.SetAccountID(account.ID())
	}

	if err := s.tasks.Create(ctx, record); err != nil {
		return err
	}
	return s.tasks.AppendLog(ctx, logLevel(state), state)
}

// WriteThrough mirrors a transition. Transitions of tasks that were never created are logged and skipped.
func (s *TaskStore) WriteThrough(ctx context.Context, state models.TaskState) error {
	record := models.NewTaskRecord(0, state.TaskID, models.Job{})
	record.ApplyState(state)

	if err := s.tasks.Update(ctx, record); err != nil {
		if errors.Is(err, shared.ErrRecordNotFound) {
			s.logger.Warn("skipping write-through for unknown task", "task_id", state.TaskID, "status", state.Status)
			return nil
		}
		return err
	}
	return s.tasks.AppendLog(ctx, logLevel(state), state)
}

func logLevel(state models.TaskState) string {
	if state.Status == models.StatusFailed {
		return "error"
	}
	return "info"
}
