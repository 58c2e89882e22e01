package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

// Executor runs the pipeline of a single task and emits its transitions.
type Executor struct {
	registry   *Registry
	hub        *Hub
	store      Persistence
	automation Automation
	logger     *log.Logger
	now        func() time.Time
}

// NewExecutor creates an [Executor]. A nil store discards write-throughs and a nil logger discards output.
func NewExecutor(registry *Registry, hub *Hub, store Persistence, automation Automation, logger *log.Logger) *Executor {
	if store == nil {
		store = NopPersistence{}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Executor{
		registry:   registry,
		hub:        hub,
		store:      store,
		automation: automation,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes job for taskID and returns once a terminal transition has been emitted.
//
// Accounts run one at a time in the order given. An account failure is recorded in the result and never stops the
// task; a job level error (including a panic outside an automation call) ends it as failed.
func (e *Executor) Run(ctx context.Context, taskID string, job *models.Job) {
	logger := shared.WithLogger(e.logger, "task_id", taskID)

	defer func() {
		if r := recover(); r != nil {
			if state, err := e.registry.Get(taskID); err == nil && state.Status.IsTerminal() {
				logger.Error("panic after terminal state", "status", state.Status, "panic", r)
				return
			}
			e.fail(ctx, logger, taskID, fmt.Errorf("unexpected panic: %v", r))
		}
	}()

	if err := e.run(ctx, logger, taskID, job); err != nil {
		e.fail(ctx, logger, taskID, err)
	}
}

func (e *Executor) run(ctx context.Context, logger *log.Logger, taskID string, job *models.Job) error {
	e.emit(ctx, logger, startedState(taskID))
	logger.Info("task started")

	if err := job.Validate(); err != nil {
		return err
	}
	if e.automation == nil {
		return fmt.Errorf("%w: no automation configured", shared.ErrServiceUnavailable)
	}

	if job.Proxy != nil {
		e.emit(ctx, logger, proxyState(taskID, job.Proxy))
	}
	e.emit(ctx, logger, scheduledState(taskID, job.Settings))

	total := len(job.Accounts)
	outcomes := make([]models.AccountOutcome, 0, total)
	progress := progressFirstRun

	for i, account := range job.Accounts {
		step := i + 1
		e.emit(ctx, logger, accountStartState(taskID, account, step, total, progress))

		data, err := executeAccount(ctx, e.automation, account, job.Settings)
		if err != nil {
			logger.Warn("account failed", "account_id", account.DisplayID(), "err", err)
			outcomes = append(outcomes, models.AccountOutcome{AccountID: account.ID, Success: false, Error: err.Error()})
			e.emit(ctx, logger, accountFailedState(taskID, account, step, total, err))
		} else {
			outcomes = append(outcomes, models.AccountOutcome{AccountID: account.ID, Success: true, Data: data})
			e.emit(ctx, logger, accountSucceededState(taskID, account, step, total))
		}
		progress = accountProgress(step)
	}

	result := &models.TaskResult{Results: outcomes}
	e.emit(ctx, logger, completedState(taskID, result))
	logger.Info("task completed", "accounts", total, "succeeded", result.Succeeded())
	return nil
}

func (e *Executor) fail(ctx context.Context, logger *log.Logger, taskID string, err error) {
	logger.Error("task failed", "err", err)
	e.emit(ctx, logger, failedState(taskID, err))
}

// emit applies a transition: registry, then hub, then a best-effort write-through.
func (e *Executor) emit(ctx context.Context, logger *log.Logger, state models.TaskState) models.TaskState {
	state.UpdatedAt = e.now()
	e.registry.Put(state)
	e.hub.Publish(state)

	// write-through outlives a cancelled run context so terminal states still reach the store
	if err := writeThrough(context.WithoutCancel(ctx), e.store, state); err != nil {
		logger.Warn("write-through failed", "status", state.Status, "err", err)
	}
	return state
}

