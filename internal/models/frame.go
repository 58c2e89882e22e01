package models

import "time"

// FrameTypeStatus is the type of every frame carrying a task transition.
const FrameTypeStatus = "status_update"

// StatusFrame is the push message sent to websocket and SSE clients for one transition.
type StatusFrame struct {
	Type      string      `json:"type"`
	TaskID    string      `json:"task_id"`
	Status    Status      `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Result    *TaskResult `json:"result,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewStatusFrame wraps s in a status frame.
func NewStatusFrame(s TaskState) StatusFrame {
	return StatusFrame{
		Type:      FrameTypeStatus,
		TaskID:    s.TaskID,
		Status:    s.Status,
		Progress:  s.Progress,
		Message:   s.Message,
		Result:    s.Result,
		UpdatedAt: s.UpdatedAt,
	}
}

// State returns the transition carried by the frame.
func (f StatusFrame) State() TaskState {
	return TaskState{
		TaskID:    f.TaskID,
		Status:    f.Status,
		Progress:  f.Progress,
		Message:   f.Message,
		Result:    f.Result,
		UpdatedAt: f.UpdatedAt,
	}
}
