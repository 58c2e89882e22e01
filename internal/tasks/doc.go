// Package tasks runs ticket jobs in the background and broadcasts every status transition.
//
// # Components
//
//   - [Registry] : sharded in-memory map of the latest [models.TaskState] per task
//   - [Hub] : fan-out of transitions to subscribers over buffered channels
//   - [Executor] : the per-task pipeline (started, proxy, schedule, one step per account, terminal state)
//   - [Orchestrator] : submission, worker lifecycle, retention and shutdown
//
// # Transitions
//
// Each transition is written to the registry, published on the hub and then written through to [Persistence],
// in that order, before the next one is computed. Persistence is best effort: failures are logged and never change
// the in-memory sequence.
//
// A task ends in exactly one of completed or failed. An account whose automation call fails (or panics) is
// recorded as a failed outcome and the task continues with the next account. Only a job level error such as a
// malformed [models.Job] ends the task as failed, with progress 0 and no result.
//
// # Subscribers
//
// [Hub.Subscribe] queues the latest known state of the task before the subscription can see any later publish, so
// late subscribers receive a baseline and then transitions in order. Publish never blocks: a subscriber whose
// buffer is full is dropped and its channel closed.
package tasks
