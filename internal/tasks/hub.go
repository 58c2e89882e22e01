package tasks

import (
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
)

// DefaultHubBuffer is the per-subscriber channel capacity used when none is configured.
const DefaultHubBuffer = 256

// Hub fans task transitions out to subscribers and remembers the latest state of each task.
//
// By default every subscriber receives every transition of every task and filters for itself. A scoped hub only
// delivers transitions of the task a subscriber asked for; subscribing with an empty task ID always receives
// everything.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	latest map[string]models.TaskState
	buffer int
	scoped bool
	closed bool
	logger *log.Logger
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber channel capacity. Values below 1 are raised to 1.
func WithBuffer(n int) HubOption {
	return func(h *Hub) { h.buffer = max(1, n) }
}

// WithScoped restricts delivery to the subscribed task.
func WithScoped(scoped bool) HubOption {
	return func(h *Hub) { h.scoped = scoped }
}

// WithHubLogger sets the logger used to report dropped subscribers.
func WithHubLogger(l *log.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[*Subscription]struct{}),
		latest: make(map[string]models.TaskState),
		buffer: DefaultHubBuffer,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is a registered listener. Receive from [Subscription.C] until it is closed.
type Subscription struct {
	hub     *Hub
	taskID  string
	ch      chan models.TaskState
	dropped bool
}

// C returns the channel transitions are delivered on. It is closed when the subscription ends for any reason.
func (s *Subscription) C() <-chan models.TaskState {
	return s.ch
}

// TaskID returns the task the subscription was opened for, or "" for all tasks.
func (s *Subscription) TaskID() string {
	return s.taskID
}

// Dropped reports whether the hub ended the subscription because its buffer was full, as opposed to
// [Subscription.Close] or [Hub.Close].
func (s *Subscription) Dropped() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription. It is safe to call more than once and after the hub was closed.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a listener.
//
// When taskID names a known task its latest state is already queued on the returned channel. On a closed hub the
// returned subscription's channel is closed.
func (h *Hub) Subscribe(taskID string) *Subscription {
	sub := &Subscription{hub: h, taskID: taskID, ch: make(chan models.TaskState, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}
	if taskID != "" {
		if state, ok := h.latest[taskID]; ok {
			sub.ch <- state
		}
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish records state as the latest for its task and delivers it to every interested subscriber without
// blocking. Subscribers whose buffer is full are dropped.
func (h *Hub) Publish(state models.TaskState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.latest[state.TaskID] = state

	for sub := range h.subs {
		if h.scoped && sub.taskID != "" && sub.taskID != state.TaskID {
			continue
		}
		select {
		case sub.ch <- state:
		default:
			delete(h.subs, sub)
			sub.dropped = true
			close(sub.ch)
			h.logger.Warn("dropping slow subscriber", "subscribed_to", sub.taskID, "task_id", state.TaskID)
		}
	}
}

// Latest returns the most recently published state of a task.
func (h *Hub) Latest(taskID string) (models.TaskState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.latest[taskID]
	return state, ok
}

// Forget drops the remembered latest state of a task.
func (h *Hub) Forget(taskID string) {
	h.mu.Lock()
	delete(h.latest, taskID)
	h.mu.Unlock()
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are ignored and later subscriptions start closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
	}
	clear(h.subs)
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
