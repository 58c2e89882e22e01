package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

const taskColumns = `id, sequence, task_id, account_id, ticket_url, session_id, ticket_type, quantity, retry_interval,
	auto_buy_time, job_json, status, progress, message, result_json, created_at, updated_at`

// TaskRepository implements [models.Repository] for [models.TaskRecord] persistence and keeps the per-task
// transition log.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new [TaskRepository] with the given database connection
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// TaskLog is one row of a task's transition history.
type TaskLog struct {
	ID        int64         `json:"id"`
	TaskID    string        `json:"task_id"`
	Level     string        `json:"level"`
	Status    models.Status `json:"status"`
	Progress  int           `json:"progress"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}

// Create inserts a new task record with generated ID and sequence.
//
// Account passwords are removed from the stored job copy.
func (r *TaskRepository) Create(ctx context.Context, record *models.TaskRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	jobJSON, err := json.Marshal(redactJob(record.Job()))
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	resultJSON, err := encodeResult(record.Result())
	if err != nil {
		return err
	}

	sequence, err := NextSequence(ctx, r.db, "ticket_tasks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	record.SetID(id)
	record.SetSequence(sequence)

	settings := record.Settings()
	query := `INSERT INTO ticket_tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		record.TaskID(),
		nullable(record.AccountID()),
		settings.URL,
		nullable(settings.SessionID),
		nullable(settings.TicketType),
		settings.EffectiveQuantity(),
		settings.EffectiveRetryInterval(),
		nullable(settings.AutoBuyTime),
		string(jobJSON),
		record.Status(),
		record.Progress(),
		record.Message(),
		resultJSON,
		record.CreatedAt(),
		record.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get retrieves a task record by row ID
func (r *TaskRepository) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM ticket_tasks WHERE id = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// GetByTaskID retrieves a task record by task ID
func (r *TaskRepository) GetByTaskID(ctx context.Context, taskID string) (*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM ticket_tasks WHERE task_id = ?`
	return r.scan(r.db.QueryRowContext(ctx, query, taskID))
}

// Update writes the status, progress, message and result of an existing task
func (r *TaskRepository) Update(ctx context.Context, record *models.TaskRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	resultJSON, err := encodeResult(record.Result())
	if err != nil {
		return err
	}

	updatedAt := record.UpdatedAt()
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		UPDATE ticket_tasks
		SET status = ?, progress = ?, message = ?, result_json = COALESCE(?, result_json), updated_at = ?
		WHERE task_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		record.Status(), record.Progress(), record.Message(), resultJSON, updatedAt, record.TaskID())
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: task %s", shared.ErrRecordNotFound, record.TaskID())
	}
	return nil
}

// List retrieves task records matching the given criteria ("status", "account_id", "limit"), newest first.
func (r *TaskRepository) List(ctx context.Context, criteria map[string]any) ([]*models.TaskRecord, error) {
	query := `SELECT ` + taskColumns + ` FROM ticket_tasks WHERE 1 = 1`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if accountID, ok := criteria["account_id"].(string); ok && accountID != "" {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var records []*models.TaskRecord
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// AppendLog records a transition in task_logs.
func (r *TaskRepository) AppendLog(ctx context.Context, level string, state models.TaskState) error {
	createdAt := state.UpdatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO task_logs (task_id, log_level, status, progress, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, state.TaskID, level, state.Status, state.Progress, state.Message, createdAt); err != nil {
		return fmt.Errorf("failed to insert task log: %w", err)
	}
	return nil
}

// Logs returns the transition history of a task in insertion order.
func (r *TaskRepository) Logs(ctx context.Context, taskID string) ([]TaskLog, error) {
	query := `
		SELECT id, task_id, log_level, status, progress, message, created_at
		FROM task_logs
		WHERE task_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task logs: %w", err)
	}
	defer rows.Close()

	var logs []TaskLog
	for rows.Next() {
		var l TaskLog
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Level, &l.Status, &l.Progress, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task log: %w", err)
		}
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return logs, nil
}

func (r *TaskRepository) scan(row scanner) (*models.TaskRecord, error) {
	var (
		id            string
		sequence      int
		taskID        string
		accountID     sql.NullString
		ticketURL     string
		sessionID     sql.NullString
		ticketType    sql.NullString
		quantity      int
		retryInterval int
		autoBuyTime   sql.NullString
		jobJSON       sql.NullString
		status        string
		progress      int
		message       sql.NullString
		resultJSON    sql.NullString
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(&id, &sequence, &taskID, &accountID, &ticketURL, &sessionID, &ticketType, &quantity,
		&retryInterval, &autoBuyTime, &jobJSON, &status, &progress, &message, &resultJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	job := models.Job{Settings: models.TicketSettings{
		URL:           ticketURL,
		SessionID:     sessionID.String,
		TicketType:    ticketType.String,
		Quantity:      quantity,
		RetryInterval: retryInterval,
		AutoBuyTime:   autoBuyTime.String,
	}}
	if jobJSON.Valid && jobJSON.String != "" {
		if err := json.Unmarshal([]byte(jobJSON.String), &job); err != nil {
			return nil, fmt.Errorf("failed to decode job for %s: %w", taskID, err)
		}
	}

	state := models.TaskState{
		TaskID:    taskID,
		Status:    models.Status(status),
		Progress:  progress,
		Message:   message.String,
		UpdatedAt: updatedAt,
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.TaskResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to decode result for %s: %w", taskID, err)
		}
		state.Result = &result
	}

	record := models.NewTaskRecord(sequence, taskID, job)
	record.SetID(id)
	record.SetAccountID(accountID.String)
	record.SetCreatedAt(createdAt)
	record.ApplyState(state)
	return record, nil
}

func encodeResult(result *models.TaskResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

// redactJob returns a copy of job without account passwords.
func redactJob(job models.Job) models.Job {
	out := job
	out.Accounts = make([]models.Account, len(job.Accounts))
	for i, a := range job.Accounts {
		a.Password = ""
		out.Accounts[i] = a
	}
	return out
}
