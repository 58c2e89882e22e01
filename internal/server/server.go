package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tixd/internal/models"
	"github.com/desertthunder/tixd/internal/services"
	"github.com/desertthunder/tixd/internal/shared"
	"github.com/desertthunder/tixd/internal/tasks"
)

// Version is reported by the root endpoint. Overridden at build time.
var Version = "dev"

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, panic recovery, CORS and rate limiting.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the task service.
// Implementations handle a group of endpoints (task REST, status streams, service info).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the "METHOD /path" patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// TaskService is the orchestrator surface the HTTP layer needs.
type TaskService interface {
	Submit(ctx context.Context, job *models.Job) (string, error)
	Get(taskID string) (models.TaskState, error)
	List() []models.TaskState
	Subscribe(taskID string) *tasks.Subscription
	Stats() tasks.Stats
}

// CaptchaSolver forwards captcha images to the automation service.
type CaptchaSolver interface {
	SolveCaptcha(ctx context.Context, body []byte) (*services.APIResponse, error)
}

// Server owns the HTTP listener and routes for the task API.
type Server struct {
	httpServer *http.Server
	router     *BasicRouter
	logger     *log.Logger
}

// New builds a [Server] for cfg. captcha may be nil when no automation service is configured.
func New(cfg *shared.Config, svc TaskService, captcha CaptchaSolver, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger), CORS(cfg.Server.CORSOrigins))

	limiter := NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	router.Handler(NewTaskHandler(svc, limiter, logger))
	router.Handler(NewStreamHandler(svc, cfg.Server.CORSOrigins, logger))
	router.Handler(NewInfoHandler(svc, cfg, captcha, logger))

	return &Server{
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens on the configured address and serves until [Server.Shutdown]. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx is done.
//
// Hijacked websocket connections are not tracked by [http.Server]; they end when the orchestrator closes its hub.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
