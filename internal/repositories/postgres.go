package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements tasks.Persistence over a pgx connection pool, using the same tables as the SQLite
// schema.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgresStore creates a new Postgres-backed task store. A nil logger discards output.
func NewPostgresStore(pool *pgxpool.Pool, logger *log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// EnsureSchema creates the account, task and log tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: postgres store not initialized", shared.ErrServiceUnavailable)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS user_accounts (
    id          TEXT PRIMARY KEY,
    sequence    BIGSERIAL,
    account_id  TEXT NOT NULL UNIQUE,
    username    TEXT NOT NULL DEFAULT '',
    password    TEXT NOT NULL DEFAULT '',
    platform    TEXT NOT NULL DEFAULT 'damai',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS ticket_tasks (
    id             TEXT PRIMARY KEY,
    sequence       BIGSERIAL,
    task_id        TEXT NOT NULL UNIQUE,
    account_id     TEXT REFERENCES user_accounts(id),
    ticket_url     TEXT NOT NULL DEFAULT '',
    session_id     TEXT,
    ticket_type    TEXT,
    quantity       INTEGER NOT NULL DEFAULT 1,
    retry_interval INTEGER NOT NULL DEFAULT 5,
    auto_buy_time  TEXT,
    job_json       JSONB,
    status         TEXT NOT NULL DEFAULT 'pending',
    progress       INTEGER NOT NULL DEFAULT 0,
    message        TEXT,
    result_json    JSONB,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_tasks_status ON ticket_tasks (status)`,
		`CREATE TABLE IF NOT EXISTS task_logs (
    id          BIGSERIAL PRIMARY KEY,
    task_id     TEXT NOT NULL REFERENCES ticket_tasks(task_id) ON DELETE CASCADE,
    log_level   TEXT NOT NULL DEFAULT 'info',
    status      TEXT NOT NULL,
    progress    INTEGER NOT NULL DEFAULT 0,
    message     TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs (task_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure task schema: %w", err)
		}
	}
	return nil
}

// CreateInitial upserts the first account of job and inserts the task row with its first log entry.
func (s *PostgresStore) CreateInitial(ctx context.Context, taskID string, job models.Job, state models.TaskState) error {
	jobJSON, err := json.Marshal(redactJob(job))
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	settings := job.Settings

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var accountRef *string
		if len(job.Accounts) > 0 && job.Accounts[0].ID != "" {
			a := job.Accounts[0]
			platform := a.Platform
			if platform == "" {
				platform = "damai"
			}

			var id string
			err := tx.QueryRow(ctx, `
INSERT INTO user_accounts (id, account_id, username, password, platform)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id) DO UPDATE SET updated_at = now()
RETURNING id`,
				shared.GenerateID(), a.ID, a.Username, a.Password, platform,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("upsert account: %w", err)
			}
			accountRef = &id
		}

		_, err := tx.Exec(ctx, `
INSERT INTO ticket_tasks (
    id, task_id, account_id, ticket_url, session_id, ticket_type, quantity, retry_interval,
    auto_buy_time, job_json, status, progress, message, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
			shared.GenerateID(), taskID, accountRef, settings.URL, nullable(settings.SessionID),
			nullable(settings.TicketType), settings.EffectiveQuantity(), settings.EffectiveRetryInterval(),
			nullable(settings.AutoBuyTime), string(jobJSON), string(state.Status), state.Progress, state.Message,
			timestampOrNow(state.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return insertLog(ctx, tx, state)
	})
}

// WriteThrough updates the task row and appends a log entry. Unknown tasks are logged and skipped.
func (s *PostgresStore) WriteThrough(ctx context.Context, state models.TaskState) error {
	resultJSON, err := encodeResult(state.Result)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE ticket_tasks
SET status = $1, progress = $2, message = $3, result_json = COALESCE($4::jsonb, result_json), updated_at = $5
WHERE task_id = $6`,
			string(state.Status), state.Progress, state.Message, resultJSON, timestampOrNow(state.UpdatedAt), state.TaskID,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: task %s", shared.ErrRecordNotFound, state.TaskID)
		}
		return insertLog(ctx, tx, state)
	})
	if errors.Is(err, shared.ErrRecordNotFound) {
		s.logger.Warn("skipping write-through for unknown task", "task_id", state.TaskID, "status", state.Status)
		return nil
	}
	return err
}

// Get returns the stored state of a task.
func (s *PostgresStore) Get(ctx context.Context, taskID string) (models.TaskState, error) {
	var (
		status     string
		progress   int
		message    *string
		resultJSON []byte
		updatedAt  time.Time
	)

	err := s.pool.QueryRow(ctx, `
SELECT status, progress, message, result_json, updated_at FROM ticket_tasks WHERE task_id = $1`, taskID,
	).Scan(&status, &progress, &message, &resultJSON, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TaskState{}, fmt.Errorf("%w: task %s", shared.ErrRecordNotFound, taskID)
	}
	if err != nil {
		return models.TaskState{}, fmt.Errorf("get task: %w", err)
	}

	state := models.TaskState{TaskID: taskID, Status: models.Status(status), Progress: progress, UpdatedAt: updatedAt}
	if message != nil {
		state.Message = *message
	}
	if len(resultJSON) > 0 {
		var result models.TaskResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return models.TaskState{}, fmt.Errorf("decode result: %w", err)
		}
		state.Result = &result
	}
	return state, nil
}

func insertLog(ctx context.Context, tx pgx.Tx, state models.TaskState) error {
	_, err := tx.Exec(ctx, `
INSERT INTO task_logs (task_id, log_level, status, progress, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		state.TaskID, logLevel(state), string(state.Status), state.Progress, state.Message, timestampOrNow(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task log: %w", err)
	}
	return nil
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
