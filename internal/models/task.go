package models

import "time"

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions follow s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along pending → started → processing → completed|failed.
//
// A valid transition stream never has a lower rank than its predecessor. Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusStarted:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

func (s Status) String() string {
	return string(s)
}

// TaskState is one transition of a task: its status, progress hint, message and (on completion) result.
//
// States are passed and stored by value. Result is shared between copies and must not be mutated once emitted.
type TaskState struct {
	TaskID    string      `json:"task_id"`
	Status    Status      `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Result    *TaskResult `json:"result,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewTaskState builds a state with progress clamped to [0,100].
func NewTaskState(taskID string, status Status, progress int, message string) TaskState {
	return TaskState{
		TaskID:   taskID,
		Status:   status,
		Progress: ClampProgress(progress),
		Message:  message,
	}
}

// ClampProgress bounds p to the [0,100] range.
func ClampProgress(p int) int {
	return max(0, min(100, p))
}

// TaskResult is the payload of a completed task.
type TaskResult struct {
	Results []AccountOutcome `json:"results"`
}

// Succeeded counts successful account outcomes.
func (r *TaskResult) Succeeded() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Results {
		if o.Success {
			n++
		}
	}
	return n
}

// AccountOutcome records what happened for one account of a job.
type AccountOutcome struct {
	AccountID string         `json:"account_id"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}
