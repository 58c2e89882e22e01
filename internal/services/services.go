// package services contains HTTP clients for the purchase automation service and for a running tixd server
package services

import (
	"context"
)

// Service is a remote HTTP dependency that can report whether it is reachable.
type Service interface {
	// Name returns a short label used in logs (e.g., "automation").
	Name() string

	// Health returns nil when the remote service answers its health endpoint with a 2xx status.
	Health(ctx context.Context) error
}

var (
	_ Service = (*AutomationService)(nil)
	_ Service = (*SimulatedAutomation)(nil)
	_ Service = (*TaskClient)(nil)
)
