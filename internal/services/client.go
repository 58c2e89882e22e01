package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/gorilla/websocket"
)

// TaskClient talks to a running tixd server.
type TaskClient struct {
	api    *APIService
	dialer *websocket.Dialer
}

// NewTaskClient creates a client for the server at baseURL (e.g., http://127.0.0.1:8000).
func NewTaskClient(baseURL string, client *http.Client) *TaskClient {
	return &TaskClient{
		api:    NewAPIService(baseURL, client),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SubmitResponse is returned by the server when it accepts a job.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// TaskList is the body of the task list endpoint.
type TaskList struct {
	Tasks []models.TaskState `json:"tasks"`
	Count int                `json:"count"`
}

func (c *TaskClient) Name() string { return "tixd" }

// Health checks the server's health endpoint.
func (c *TaskClient) Health(ctx context.Context) error {
	resp, err := c.api.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: health returned %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// Submit sends job to the server and returns the new task's ID.
func (c *TaskClient) Submit(ctx context.Context, job *models.Job) (*SubmitResponse, error) {
	resp, err := c.api.PostJSON(ctx, "/api/ticket/task", job)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out SubmitResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the latest state of a task.
func (c *TaskClient) Status(ctx context.Context, taskID string) (models.TaskState, error) {
	resp, err := c.api.Get(ctx, "/api/ticket/task/"+url.PathEscape(taskID))
	if err != nil {
		return models.TaskState{}, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if err := checkStatus(resp); err != nil {
		return models.TaskState{}, err
	}

	var state models.TaskState
	if err := resp.Decode(&state); err != nil {
		return models.TaskState{}, err
	}
	return state, nil
}

// List returns every task the server holds.
func (c *TaskClient) List(ctx context.Context) ([]models.TaskState, error) {
	resp, err := c.api.Get(ctx, "/api/ticket/tasks")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out TaskList
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// maxRedials bounds how often a [Watcher] reconnects after the server dropped it for falling behind.
const maxRedials = 3

// Watch opens the websocket stream of a task. The connection is closed when ctx ends.
func (c *TaskClient) Watch(ctx context.Context, taskID string) (*Watcher, error) {
	conn, err := c.dial(ctx, taskID)
	if err != nil {
		return nil, err
	}

	w := &Watcher{client: c, ctx: ctx, conn: conn, taskID: taskID, done: make(chan struct{})}
	go w.closeOnCancel()
	return w, nil
}

func (c *TaskClient) dial(ctx context.Context, taskID string) (*websocket.Conn, error) {
	wsURL, err := websocketURL(c.api.BaseURL(), "/ws/task/"+url.PathEscape(taskID))
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("%w: websocket dial: %v", shared.ErrAPIRequest, err)
	}
	return conn, nil
}

// Watcher reads the status frames of one task.
//
// When the server drops the stream because the client fell behind, the watcher reconnects and resumes from the
// task's latest state.
type Watcher struct {
	client *TaskClient
	ctx    context.Context
	taskID string
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn

	last    models.TaskState
	seen    bool
	redials int
	resumed bool
}

// Next blocks for the next transition of the watched task.
//
// It returns [io.EOF] once the server closed the stream after the terminal state, [shared.ErrTaskNotFound] when
// the server rejects the task ID and [shared.ErrStreamEnded] when the stream ends while the task is still running.
func (w *Watcher) Next() (models.TaskState, error) {
	for {
		var frame models.StatusFrame
		if err := w.current().ReadJSON(&frame); err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.ClosePolicyViolation):
				return models.TaskState{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, w.taskID)
			case websocket.IsCloseError(err, websocket.CloseTryAgainLater):
				if err := w.redial(); err != nil {
					return models.TaskState{}, err
				}
				continue
			case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				return models.TaskState{}, io.EOF
			case websocket.IsCloseError(err, websocket.CloseGoingAway):
				if w.last.Status.IsTerminal() {
					return models.TaskState{}, io.EOF
				}
				return models.TaskState{}, fmt.Errorf("%w: %s (server shutting down)", shared.ErrStreamEnded, w.taskID)
			}
			return models.TaskState{}, fmt.Errorf("read frame: %w", err)
		}
		if frame.Type != models.FrameTypeStatus || frame.TaskID != w.taskID {
			continue
		}

		state := frame.State()
		if w.resumed {
			w.resumed = false
			if w.seen && sameState(state, w.last) {
				continue
			}
		}
		w.last, w.seen = state, true
		return state, nil
	}
}

// Close sends a close frame and releases the connection.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		conn := w.current()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = conn.Close()
	})
	return err
}

func (w *Watcher) current() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *Watcher) redial() error {
	if w.redials >= maxRedials {
		return fmt.Errorf("%w: %s (dropped %d times)", shared.ErrStreamEnded, w.taskID, w.redials+1)
	}
	w.redials++

	conn, err := w.client.dial(w.ctx, w.taskID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	old := w.conn
	w.conn = conn
	w.mu.Unlock()
	old.Close()

	w.resumed = true
	return nil
}

func (w *Watcher) closeOnCancel() {
	select {
	case <-w.ctx.Done():
		w.current().Close()
	case <-w.done:
	}
}

// sameState reports whether a and b are the same transition, used to skip the baseline repeated after a reconnect.
func sameState(a, b models.TaskState) bool {
	return a.TaskID == b.TaskID && a.Status == b.Status && a.Progress == b.Progress &&
		a.Message == b.Message && a.UpdatedAt.Equal(b.UpdatedAt)
}

func checkStatus(resp *APIResponse) error {
	if resp.OK() {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, resp.ErrorMessage())
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", shared.ErrInvalidJob, resp.ErrorMessage())
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, resp.ErrorMessage())
	}
	return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, resp.ErrorMessage())
}

func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid server url: %v", shared.ErrInvalidArgument, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", shared.ErrInvalidArgument, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// IsStreamEnd reports whether err from [Watcher.Next] means the stream ended without a failure.
func IsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
