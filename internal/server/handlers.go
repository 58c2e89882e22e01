package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/shared"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// TaskHandler serves task submission and lookup.
type TaskHandler struct {
	svc    TaskService
	mux    *http.ServeMux
	logger *log.Logger
}

// NewTaskHandler creates a [TaskHandler]. Submissions are throttled by limiter when it is non-nil.
func NewTaskHandler(svc TaskService, limiter *rate.Limiter, logger *log.Logger) *TaskHandler {
	h := &TaskHandler{svc: svc, mux: http.NewServeMux(), logger: logger}
	h.mux.Handle("POST /api/ticket/task", RateLimit(limiter)(http.HandlerFunc(h.submit)))
	h.mux.HandleFunc("GET /api/ticket/task/{id}", h.get)
	h.mux.HandleFunc("GET /api/ticket/tasks", h.list)
	return h
}

func (h *TaskHandler) Routes() []string {
	return []string{"POST /api/ticket/task", "GET /api/ticket/task/{id}", "GET /api/ticket/tasks"}
}

func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SubmitResponse is the 202 body returned for an accepted job.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

func (h *TaskHandler) submit(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	taskID, err := h.svc.Submit(r.Context(), &job)
	switch {
	case errors.Is(err, shared.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, shared.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error("submit failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		TaskID: taskID,
		Status: "created",
		URL:    "/api/ticket/task/" + taskID,
	})
}

func (h *TaskHandler) get(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Get(r.PathValue("id"))
	if errors.Is(err, shared.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// TaskList is the body of the task list endpoint.
type TaskList struct {
	Tasks []models.TaskState `json:"tasks"`
	Count int                `json:"count"`
}

// list returns every known task, optionally filtered with ?status=.
func (h *TaskHandler) list(w http.ResponseWriter, r *http.Request) {
	states := h.svc.List()
	if status := r.URL.Query().Get("status"); status != "" {
		states = slices.DeleteFunc(states, func(s models.TaskState) bool {
			return string(s.Status) != status
		})
	}
	if states == nil {
		states = []models.TaskState{}
	}
	writeJSON(w, http.StatusOK, TaskList{Tasks: states, Count: len(states)})
}

// InfoHandler serves the service banner, health, redacted configuration and the captcha proxy.
type InfoHandler struct {
	svc     TaskService
	cfg     *shared.Config
	captcha CaptchaSolver
	mux     *http.ServeMux
	logger  *log.Logger
}

func NewInfoHandler(svc TaskService, cfg *shared.Config, captcha CaptchaSolver, logger *log.Logger) *InfoHandler {
	h := &InfoHandler{svc: svc, cfg: cfg, captcha: captcha, mux: http.NewServeMux(), logger: logger}
	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("GET /api/config", h.config)
	h.mux.HandleFunc("POST /api/captcha/solve", h.solveCaptcha)
	return h
}

func (h *InfoHandler) Routes() []string {
	return []string{"GET /{$}", "GET /healthz", "GET /api/config", "POST /api/captcha/solve"}
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *InfoHandler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "tixd API", "version": Version})
}

// HealthResponse reports liveness plus orchestrator counters.
type HealthResponse struct {
	Status      string `json:"status"`
	Tasks       int    `json:"tasks"`
	Active      int    `json:"active"`
	Subscribers int    `json:"subscribers"`
}

func (h *InfoHandler) health(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Stats()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Tasks:       stats.Tasks,
		Active:      stats.Active,
		Subscribers: stats.Subscribers,
	})
}

func (h *InfoHandler) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Redacted())
}

func (h *InfoHandler) solveCaptcha(w http.ResponseWriter, r *http.Request) {
	if h.captcha == nil {
		writeError(w, http.StatusServiceUnavailable, "captcha solving is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.captcha.SolveCaptcha(r.Context(), body)
	if err != nil {
		h.logger.Warn("captcha proxy failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
