package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
)

const (
	automationExecutePath = "/api/automation/execute"
	captchaSolvePath      = "/api/captcha/solve"
	automationHealthPath  = "/health"
)

// AutomationService runs purchase attempts on the external automation service. It implements tasks.Automation.
type AutomationService struct {
	api *APIService
}

// NewAutomationService creates a client for the automation service at baseURL. Each call is bounded by timeout
// when it is positive.
func NewAutomationService(baseURL string, timeout time.Duration) *AutomationService {
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &AutomationService{api: NewAPIService(baseURL, client)}
}

// NewAutomationServiceWithAPI wraps an existing [APIService].
func NewAutomationServiceWithAPI(api *APIService) *AutomationService {
	return &AutomationService{api: api}
}

type executeRequest struct {
	Account  models.Account        `json:"account"`
	Settings models.TicketSettings `json:"ticket_settings"`
}

type executeResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

func (s *AutomationService) Name() string { return "automation" }

// Health checks the automation service's health endpoint.
func (s *AutomationService) Health(ctx context.Context) error {
	resp, err := s.api.Get(ctx, automationHealthPath)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: health returned %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// Execute runs the purchase flow for one account.
//
// A transport failure, a non-2xx status or a response with success=false is returned as an error.
func (s *AutomationService) Execute(ctx context.Context, account models.Account, settings models.TicketSettings) (map[string]any, error) {
	resp, err := s.api.PostJSON(ctx, automationExecutePath, executeRequest{Account: account, Settings: settings})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, resp.ErrorMessage())
	}

	var out executeResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "automation reported failure"
		}
		return nil, fmt.Errorf("%s", out.Error)
	}
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	return out.Data, nil
}

// SolveCaptcha forwards a raw captcha request body and returns the raw response.
func (s *AutomationService) SolveCaptcha(ctx context.Context, body []byte) (*APIResponse, error) {
	resp, err := s.api.Post(ctx, captchaSolvePath, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	return resp, nil
}
