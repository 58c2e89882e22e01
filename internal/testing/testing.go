// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/tixd/internal/models"
)

// MockAutomation is a scripted test double for tasks.Automation.
//
// Accounts listed in Fail return that error, accounts listed in Panic panic with that value, and every other
// account succeeds with Data. When Block is set each call waits for it to be closed (or for ctx to end).
type MockAutomation struct {
	Fail    map[string]error
	Panic   map[string]any
	Data    map[string]any
	Block   chan struct{}
	Started chan string

	mu    sync.Mutex
	calls []string
}

func (m *MockAutomation) Execute(ctx context.Context, account models.Account, settings models.TicketSettings) (map[string]any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, account.ID)
	m.mu.Unlock()

	if m.Started != nil {
		select {
		case m.Started <- account.ID:
		default:
		}
	}

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if v, ok := m.Panic[account.ID]; ok {
		panic(v)
	}
	if err, ok := m.Fail[account.ID]; ok {
		return nil, err
	}

	data := map[string]any{"account_id": account.ID}
	for k, v := range m.Data {
		data[k] = v
	}
	return data, nil
}

// Calls returns the account IDs passed to Execute, in call order.
func (m *MockAutomation) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// RecordingPersistence keeps every call in memory.
type RecordingPersistence struct {
	mu      sync.Mutex
	created map[string]models.Job
	states  []models.TaskState
}

func NewRecordingPersistence() *RecordingPersistence {
	return &RecordingPersistence{created: make(map[string]models.Job)}
}

func (p *RecordingPersistence) CreateInitial(ctx context.Context, taskID string, job models.Job, state models.TaskState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created[taskID] = job
	p.states = append(p.states, state)
	return nil
}

func (p *RecordingPersistence) WriteThrough(ctx context.Context, state models.TaskState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return nil
}

// Created reports whether CreateInitial was called for taskID.
func (p *RecordingPersistence) Created(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.created[taskID]
	return ok
}

// Transitions returns the recorded states of taskID in call order.
func (p *RecordingPersistence) Transitions(taskID string) []models.TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.TaskState
	for _, s := range p.states {
		if s.TaskID == taskID {
			out = append(out, s)
		}
	}
	return out
}

// FailingPersistence returns Err from every call and counts them.
type FailingPersistence struct {
	Err error

	mu    sync.Mutex
	calls int
}

func (p *FailingPersistence) CreateInitial(context.Context, string, models.Job, models.TaskState) error {
	return p.fail()
}

func (p *FailingPersistence) WriteThrough(context.Context, models.TaskState) error {
	return p.fail()
}

func (p *FailingPersistence) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *FailingPersistence) fail() error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.Err == nil {
		return errors.New("store unavailable")
	}
	return p.Err
}

// PanickingPersistence panics with Value on CreateInitial when OnCreate is set, and on WriteThrough for the
// statuses in On (every status when On is empty).
type PanickingPersistence struct {
	Value    any
	On       map[models.Status]bool
	OnCreate bool
}

func (p *PanickingPersistence) CreateInitial(context.Context, string, models.Job, models.TaskState) error {
	if p.OnCreate {
		panic(p.Value)
	}
	return nil
}

func (p *PanickingPersistence) WriteThrough(ctx context.Context, state models.TaskState) error {
	if len(p.On) == 0 || p.On[state.Status] {
		panic(p.Value)
	}
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
