package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/tixd/internal/models"
)

// Automation performs the purchase attempt for one account.
//
// Execute may block for as long as the attempt takes. The returned data is reported verbatim in the account's
// outcome.
type Automation interface {
	Execute(ctx context.Context, account models.Account, settings models.TicketSettings) (map[string]any, error)
}

// AutomationFunc adapts a function to [Automation].
type AutomationFunc func(ctx context.Context, account models.Account, settings models.TicketSettings) (map[string]any, error)

func (f AutomationFunc) Execute(ctx context.Context, account models.Account, settings models.TicketSettings) (map[string]any, error) {
	return f(ctx, account, settings)
}

// executeAccount calls a and turns a panic into an error so it counts as that account's failure.
func executeAccount(ctx context.Context, a Automation, account models.Account, settings models.TicketSettings) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("automation panicked: %v", r)
		}
	}()
	return a.Execute(ctx, account, settings)
}
