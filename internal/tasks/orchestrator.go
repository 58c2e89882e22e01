package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

// Options configures an [Orchestrator]. The zero value runs every task immediately and keeps finished tasks forever.
type Options struct {
	MaxWorkers     int           // concurrent tasks; 0 means unbounded
	Retention      time.Duration // how long finished tasks stay queryable; 0 keeps them
	RetentionSweep time.Duration // janitor interval; defaults to Retention
	HubBuffer      int
	HubScoped      bool
	Logger         *log.Logger
}

// OptionsFromConfig maps the executor and hub config sections onto [Options].
func OptionsFromConfig(cfg *shared.Config, logger *log.Logger) Options {
	return Options{
		MaxWorkers:     cfg.Executor.MaxWorkers,
		Retention:      cfg.Executor.Retention,
		RetentionSweep: cfg.Executor.RetentionSweep,
		HubBuffer:      cfg.Hub.Buffer,
		HubScoped:      cfg.Hub.Scoped,
		Logger:         logger,
	}
}

// Orchestrator accepts jobs, runs each on its own goroutine and exposes task state and subscriptions.
type Orchestrator struct {
	registry *Registry
	hub      *Hub
	store    Persistence
	executor *Executor
	logger   *log.Logger
	now      func() time.Time

	slots  chan struct{}
	active atomic.Int64

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	closing bool

	retention   time.Duration
	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// NewOrchestrator creates an [Orchestrator] and starts its retention janitor when retention is enabled.
func NewOrchestrator(automation Automation, store Persistence, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if store == nil {
		store = NopPersistence{}
	}

	hubOpts := []HubOption{WithScoped(opts.HubScoped), WithHubLogger(logger)}
	if opts.HubBuffer > 0 {
		hubOpts = append(hubOpts, WithBuffer(opts.HubBuffer))
	}

	registry := NewRegistry()
	hub := NewHub(hubOpts...)
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		registry:  registry,
		hub:       hub,
		store:     store,
		executor:  NewExecutor(registry, hub, store, automation, logger),
		logger:    logger,
		now:       time.Now,
		baseCtx:   ctx,
		cancel:    cancel,
		retention: opts.Retention,
	}
	if opts.MaxWorkers > 0 {
		o.slots = make(chan struct{}, opts.MaxWorkers)
	}

	if opts.Retention > 0 {
		sweep := opts.RetentionSweep
		if sweep <= 0 {
			sweep = opts.Retention
		}
		o.stopJanitor = make(chan struct{})
		o.janitorDone = make(chan struct{})
		go o.janitor(sweep)
	}
	return o
}

// Submit registers job as a new pending task, starts it in the background and returns its ID without waiting.
//
// A malformed job is accepted here and fails inside its worker. Submit only rejects a nil job, and every job once
// [Orchestrator.Shutdown] has begun.
func (o *Orchestrator) Submit(ctx context.Context, job *models.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("%w: job is required", shared.ErrInvalidJob)
	}

	o.mu.RLock()
	if o.closing {
		o.mu.RUnlock()
		return "", shared.ErrShuttingDown
	}
	o.wg.Add(1)
	o.mu.RUnlock()

	owned := *job
	owned.Accounts = slices.Clone(job.Accounts)

	var state models.TaskState
	for {
		state = pendingState(shared.GenerateTaskID(o.now().Unix()))
		state.UpdatedAt = o.now()
		if o.registry.PutIfAbsent(state) {
			break
		}
	}
	taskID := state.TaskID
	o.hub.Publish(state)

	if err := createInitial(ctx, o.store, taskID, owned, state); err != nil {
		o.logger.Warn("failed to persist new task", "task_id", taskID, "err", err)
	}

	go o.work(taskID, &owned)

	o.logger.Debug("task submitted", "task_id", taskID, "accounts", len(owned.Accounts))
	return taskID, nil
}

func (o *Orchestrator) work(taskID string, job *models.Job) {
	defer o.wg.Done()

	if o.slots != nil {
		select {
		case o.slots <- struct{}{}:
			defer func() { <-o.slots }()
		case <-o.baseCtx.Done():
			logger := shared.WithLogger(o.logger, "task_id", taskID)
			o.executor.fail(o.baseCtx, logger, taskID, o.baseCtx.Err())
			return
		}
	}

	o.active.Add(1)
	defer o.active.Add(-1)
	o.executor.Run(o.baseCtx, taskID, job)
}

// Get returns the latest state of a task or an error wrapping [shared.ErrTaskNotFound].
func (o *Orchestrator) Get(taskID string) (models.TaskState, error) {
	return o.registry.Get(taskID)
}

// List returns a snapshot of every known task.
func (o *Orchestrator) List() []models.TaskState {
	return o.registry.List()
}

// Subscribe opens a hub subscription. See [Hub.Subscribe].
func (o *Orchestrator) Subscribe(taskID string) *Subscription {
	return o.hub.Subscribe(taskID)
}

// Active returns the number of tasks currently executing.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Stats summarizes the orchestrator for health reporting.
type Stats struct {
	Tasks       int `json:"tasks"`
	Active      int `json:"active"`
	Subscribers int `json:"subscribers"`
}

// Stats returns the current task and subscriber counts.
func (o *Orchestrator) Stats() Stats {
	return Stats{Tasks: o.registry.Len(), Active: o.Active(), Subscribers: o.hub.Subscribers()}
}

// Shutdown stops accepting jobs and waits for running tasks until ctx is done.
//
// If ctx expires first, the context passed to automations is cancelled and ctx's error is returned. The hub is
// closed in both cases, ending every subscription.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return nil
	}
	o.closing = true
	o.mu.Unlock()

	if o.stopJanitor != nil {
		close(o.stopJanitor)
		<-o.janitorDone
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		o.logger.Warn("shutdown timed out, cancelling running tasks", "active", o.Active())
	}

	o.cancel()
	o.hub.Close()
	return err
}

func (o *Orchestrator) janitor(sweep time.Duration) {
	defer close(o.janitorDone)

	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.evict()
		case <-o.stopJanitor:
			return
		}
	}
}

func (o *Orchestrator) evict() int {
	ids := o.registry.Evict(o.now().Add(-o.retention))
	for _, id := range ids {
		o.hub.Forget(id)
	}
	if len(ids) > 0 {
		o.logger.Debug("evicted finished tasks", "count", len(ids))
	}
	return len(ids)
}
