package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

// SimulatedAutomation pretends to buy tickets. Each call waits Delay, then succeeds unless the account carries
// "simulate_error" in its extra fields.
type SimulatedAutomation struct {
	Delay time.Duration
}

func (s *SimulatedAutomation) Name() string { return "simulated automation" }

func (s *SimulatedAutomation) Health(context.Context) error { return nil }

func (s *SimulatedAutomation) Execute(ctx context.Context, account models.Account, settings models.TicketSettings) (map[string]any, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if msg, ok := account.Extra["simulate_error"]; ok {
		return nil, fmt.Errorf("%v", msg)
	}

	return map[string]any{
		"order_id":    "sim_" + shared.GenerateID()[:8],
		"ticket_url":  settings.URL,
		"quantity":    settings.EffectiveQuantity(),
		"ticket_type": settings.TicketType,
	}, nil
}
