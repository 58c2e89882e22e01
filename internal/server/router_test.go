package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

type stubHandler struct {
	routes []string
	body   string
}

func (s stubHandler) Routes() []string { return s.routes }

func (s stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(s.body + ":" + r.PathValue("id")))
}

func TestBasicRouter(t *testing.T) {
	t.Run("HandleMatchesMethod", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle("get", "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pong"))
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
			t.Fatalf("GET /ping = %d %q", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST /ping = %d, want 405", rec.Code)
		}
	})

	t.Run("HandlerRegistersRoutes", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handler(stubHandler{routes: []string{"GET /items/{id}"}, body: "item"})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		if got := rec.Body.String(); got != "item:42" {
			t.Errorf("body = %q, want item:42", got)
		}
	})

	t.Run("MiddlewareOrder", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.Handle(http.MethodGet, "/", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			order = append(order, "handler")
		}))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("order = %v", order)
		}
	})
}

func TestMiddleware(t *testing.T) {
	logger := log.New(&strings.Builder{})

	t.Run("RecoverReturns500", func(t *testing.T) {
		h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"detail"`) {
			t.Errorf("body = %q, want detail", rec.Body.String())
		}
	})

	t.Run("LoggingRecordsStatus", func(t *testing.T) {
		var buf strings.Builder
		h := Logging(log.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

		if !strings.Contains(buf.String(), "418") || !strings.Contains(buf.String(), "/tea") {
			t.Errorf("log = %q", buf.String())
		}
	})

	t.Run("CORS", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

		tests := []struct {
			name    string
			origins []string
			origin  string
			want    string
		}{
			{"Wildcard", []string{"*"}, "http://a.test", "*"},
			{"Listed", []string{"http://a.test"}, "http://a.test", "http://a.test"},
			{"Unlisted", []string{"http://a.test"}, "http://b.test", ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("Origin", tt.origin)
				rec := httptest.NewRecorder()
				CORS(tt.origins)(next).ServeHTTP(rec, req)

				if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
					t.Errorf("allow origin = %q, want %q", got, tt.want)
				}
			})
		}

		t.Run("Preflight", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/ticket/task", nil)
			req.Header.Set("Origin", "http://a.test")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()
			CORS([]string{"*"})(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", rec.Code)
			}
		})
	})

	t.Run("RateLimit", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 2)
		h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		codes := make([]int, 3)
		for i := range codes {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			codes[i] = rec.Code
		}
		if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
			t.Errorf("codes = %v, want [200 200 429]", codes)
		}
	})

	t.Run("NewLimiterDisabled", func(t *testing.T) {
		if NewLimiter(0, 5) != nil {
			t.Error("zero rate should disable limiting")
		}
		if l := NewLimiter(2, 0); l == nil || l.Burst() != 1 {
			t.Errorf("burst should be at least 1, got %v", l)
		}
	})
}
