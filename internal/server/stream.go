package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/desertthunder/tixd/internal/tasks"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sseHeartbeat = 15 * time.Second
)

// StreamHandler pushes task transitions to websocket and server-sent-event clients.
type StreamHandler struct {
	svc      TaskService
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	logger   *log.Logger
}

func NewStreamHandler(svc TaskService, origins []string, logger *log.Logger) *StreamHandler {
	h := &StreamHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
		mux:    http.NewServeMux(),
		logger: logger,
	}
	h.mux.HandleFunc("GET /ws/task/{id}", h.watchTask)
	h.mux.HandleFunc("GET /ws/tasks", h.watchAll)
	h.mux.HandleFunc("GET /api/ticket/task/{id}/stream", h.streamTask)
	return h
}

func (h *StreamHandler) Routes() []string {
	return []string{"GET /ws/task/{id}", "GET /ws/tasks", "GET /api/ticket/task/{id}/stream"}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// watchTask streams one task's transitions, starting with its current state, and closes normally after the
// terminal one. Unknown tasks are closed with a policy-violation frame.
func (h *StreamHandler) watchTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	if _, err := h.svc.Get(taskID); errors.Is(err, shared.ErrTaskNotFound) {
		closeConn(conn, websocket.ClosePolicyViolation, "task not found")
		return
	}

	sub := h.svc.Subscribe(taskID)
	defer sub.Close()

	h.pump(conn, sub, taskID)
}

// watchAll streams every task's transitions until the client leaves or the server shuts down.
func (h *StreamHandler) watchAll(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sub := h.svc.Subscribe("")
	defer sub.Close()

	h.pump(conn, sub, "")
}

// pump writes frames from sub to conn. With a non-empty taskID, frames of other tasks are skipped and the
// connection ends after the task's terminal frame.
func (h *StreamHandler) pump(conn *websocket.Conn, sub *tasks.Subscription, taskID string) {
	gone := make(chan struct{})
	go readUntilClosed(conn, gone)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	logger := shared.WithLogger(h.logger, "task_id", taskID)
	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case state, ok := <-sub.C():
			if !ok {
				if sub.Dropped() {
					logger.Warn("websocket subscriber fell behind, closing")
					closeConn(conn, websocket.CloseTryAgainLater, "subscriber fell behind")
					return
				}
				closeConn(conn, websocket.CloseGoingAway, "server shutting down")
				return
			}
			if taskID != "" && state.TaskID != taskID {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(models.NewStatusFrame(state)); err != nil {
				logger.Debug("websocket write failed", "err", err)
				return
			}
			if taskID != "" && state.Status.IsTerminal() {
				closeConn(conn, websocket.CloseNormalClosure, string(state.Status))
				return
			}
		}
	}
}

// readUntilClosed drains client messages so control frames are processed, closing gone on the first read error.
func readUntilClosed(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// streamTask is the server-sent-event form of watchTask.
func (h *StreamHandler) streamTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if _, err := h.svc.Get(taskID); errors.Is(err, shared.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.svc.Subscribe(taskID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case state, ok := <-sub.C():
			if !ok {
				return
			}
			if state.TaskID != taskID {
				continue
			}
			if err := writeEvent(w, models.NewStatusFrame(state)); err != nil {
				return
			}
			flusher.Flush()
			if state.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, frame models.StatusFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Type, data)
	return err
}
