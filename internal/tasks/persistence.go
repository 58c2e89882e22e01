package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/tixd/internal/models"
)

// Persistence mirrors task state into a durable store.
//
// The in-memory [Registry] stays authoritative: callers log errors returned here and carry on.
type Persistence interface {
	// CreateInitial records a newly submitted task together with its job.
	CreateInitial(ctx context.Context, taskID string, job models.Job, state models.TaskState) error
	// WriteThrough records a transition of a task created with CreateInitial.
	WriteThrough(ctx context.Context, state models.TaskState) error
}

// NopPersistence discards everything. Used when no database is configured.
type NopPersistence struct{}

func (NopPersistence) CreateInitial(context.Context, string, models.Job, models.TaskState) error {
	return nil
}

func (NopPersistence) WriteThrough(context.Context, models.TaskState) error {
	return nil
}

// createInitial and writeThrough call store and turn a panic into an error so it stays a persistence failure.
func createInitial(ctx context.Context, store Persistence, taskID string, job models.Job, state models.TaskState) (err error) {
	defer recoverStore(&err)
	return store.CreateInitial(ctx, taskID, job, state)
}

func writeThrough(ctx context.Context, store Persistence, state models.TaskState) (err error) {
	defer recoverStore(&err)
	return store.WriteThrough(ctx, state)
}

func recoverStore(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("persistence panicked: %v", r)
	}
}
