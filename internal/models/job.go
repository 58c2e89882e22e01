package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/tixd/internal/shared"
)

// DefaultRetryInterval is used when a job does not set one, in seconds.
const DefaultRetryInterval = 5

// Job is a request to run the purchase automation for a list of accounts.
type Job struct {
	Accounts []Account     `json:"accounts"`
	Settings TicketSettings `json:"ticket_settings"`
	Proxy    *Proxy         `json:"proxy,omitempty"`
}

// Validate reports a malformed job. The returned error wraps [shared.ErrInvalidJob].
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: job is empty", shared.ErrInvalidJob)
	}
	if len(j.Accounts) == 0 {
		return fmt.Errorf("%w: at least one account is required", shared.ErrInvalidJob)
	}
	if j.Settings.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", shared.ErrInvalidJob)
	}
	if j.Settings.RetryInterval < 0 {
		return fmt.Errorf("%w: retry_interval must not be negative", shared.ErrInvalidJob)
	}
	if j.Proxy != nil && strings.TrimSpace(j.Proxy.IP) == "" {
		return fmt.Errorf("%w: proxy ip is required when a proxy is given", shared.ErrInvalidJob)
	}
	return nil
}

// Account is a single purchasing identity. Fields not listed here are kept in Extra.
type Account struct {
	ID       string         `json:"id"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Platform string         `json:"platform,omitempty"`
	Extra    map[string]any `json:"-"`
}

// DisplayID returns the account ID, or "unknown" when the account has none.
func (a Account) DisplayID() string {
	if a.ID == "" {
		return "unknown"
	}
	return a.ID
}

func (a *Account) UnmarshalJSON(data []byte) error {
	type alias Account
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	extra, err := unknownFields(data, "id", "username", "password", "platform")
	if err != nil {
		return err
	}
	out.Extra = extra
	*a = Account(out)
	return nil
}

func (a Account) MarshalJSON() ([]byte, error) {
	type alias Account
	return mergeExtra(alias(a), a.Extra)
}

// TicketSettings describes what to buy and when. Fields not listed here are kept in Extra and passed
// to the automation routine untouched.
type TicketSettings struct {
	URL           string         `json:"url,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	TicketType    string         `json:"ticket_type,omitempty"`
	Quantity      int            `json:"quantity,omitempty"`
	RetryInterval int            `json:"retry_interval,omitempty"` // seconds
	AutoBuyTime   string         `json:"auto_buy_time,omitempty"`
	Extra         map[string]any `json:"-"`
}

// EffectiveRetryInterval returns RetryInterval or [DefaultRetryInterval] when unset.
func (s TicketSettings) EffectiveRetryInterval() int {
	if s.RetryInterval == 0 {
		return DefaultRetryInterval
	}
	return s.RetryInterval
}

// EffectiveQuantity returns Quantity or 1 when unset.
func (s TicketSettings) EffectiveQuantity() int {
	if s.Quantity == 0 {
		return 1
	}
	return s.Quantity
}

func (s *TicketSettings) UnmarshalJSON(data []byte) error {
	type alias TicketSettings
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	extra, err := unknownFields(data, "url", "session_id", "ticket_type", "quantity", "retry_interval", "auto_buy_time")
	if err != nil {
		return err
	}
	out.Extra = extra
	*s = TicketSettings(out)
	return nil
}

func (s TicketSettings) MarshalJSON() ([]byte, error) {
	type alias TicketSettings
	return mergeExtra(alias(s), s.Extra)
}

// Proxy is the proxy endpoint a job's automation should route through.
type Proxy struct {
	IP       string `json:"ip"`
	Port     string `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// Address returns ip:port.
func (p Proxy) Address() string {
	return fmt.Sprintf("%s:%s", p.IP, p.Port)
}

// UnmarshalJSON accepts the port as either a string or a number.
func (p *Proxy) UnmarshalJSON(data []byte) error {
	var raw struct {
		IP       string          `json:"ip"`
		Port     json.RawMessage `json:"port"`
		Protocol string          `json:"protocol"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.IP = raw.IP
	p.Protocol = raw.Protocol
	p.Port = ""

	port := bytes.TrimSpace(raw.Port)
	switch {
	case len(port) == 0 || bytes.Equal(port, []byte("null")):
	case port[0] == '"':
		if err := json.Unmarshal(port, &p.Port); err != nil {
			return fmt.Errorf("invalid proxy port: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(port, &n); err != nil {
			return fmt.Errorf("invalid proxy port: %w", err)
		}
		p.Port = n.String()
	}
	return nil
}

// unknownFields returns the top-level keys of the JSON object in data that are not in known.
func unknownFields(data []byte, known ...string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// mergeExtra marshals v and adds the extra keys that v does not already define.
func mergeExtra(v any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, exists := fields[k]; !exists {
			fields[k] = val
		}
	}
	return json.Marshal(fields)
}
