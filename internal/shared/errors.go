package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Task errors
	ErrTaskNotFound = fmt.Errorf("task not found")
	ErrInvalidJob   = fmt.Errorf("invalid job")
	ErrShuttingDown = fmt.Errorf("orchestrator shutting down")
	ErrStreamEnded  = fmt.Errorf("status stream ended before the task finished")

	// Persistence errors
	ErrRecordNotFound = fmt.Errorf("record not found")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
