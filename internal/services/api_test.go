package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tu "github.com/desertthunder/tixd/internal/testing"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("Defaults", func(t *testing.T) {
			srv := NewAPIService("", nil)
			if srv.baseURL != "http://localhost:8080" {
				t.Errorf("expected default baseURL, got %s", srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})

		t.Run("Trailing Slash Trimmed", func(t *testing.T) {
			srv := NewAPIService("http://example.com/", nil)
			if srv.BaseURL() != "http://example.com" {
				t.Errorf("expected trimmed baseURL, got %s", srv.BaseURL())
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected GET method, got %s", r.Method)
			}
			w.Header().Set("X-Custom-Header", "test-value")
			switch r.URL.Path {
			case "/json":
				json.NewEncoder(w).Encode(map[string]string{"status": "success"})
			default:
				w.Write([]byte("plain text response"))
			}
		}))
		defer server.Close()

		srv := NewAPIService(server.URL, nil)

		resp, err := srv.Get(context.Background(), "/json")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !resp.OK() || !resp.IsJSON || resp.JSONData == nil {
			t.Errorf("expected OK JSON response, got %+v", resp)
		}
		if resp.Headers.Get("X-Custom-Header") != "test-value" {
			t.Errorf("expected custom header, got %q", resp.Headers.Get("X-Custom-Header"))
		}

		resp, err = srv.Get(context.Background(), "/text")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.IsJSON || string(resp.Body) != "plain text response" {
			t.Errorf("expected plain body, got %q", resp.Body)
		}
	})

	t.Run("PostJSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			var data map[string]string
			if err := json.Unmarshal(body, &data); err != nil || data["test"] != "data" {
				t.Errorf("unexpected request body %s", body)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id": "123"}`))
		}))
		defer server.Close()

		resp, err := NewAPIService(server.URL, nil).PostJSON(context.Background(), "/test", map[string]string{"test": "data"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var out struct {
			ID string `json:"id"`
		}
		if err := resp.Decode(&out); err != nil || out.ID != "123" {
			t.Errorf("unexpected decode result %q (%v)", out.ID, err)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			name    string
			client  *http.Client
			path    string
			wantErr string
		}{
			{
				name:    "Failed Request Creation",
				path:    "/test\x00invalid",
				wantErr: "failed to create request",
			},
			{
				name:    "Failed HTTP Request",
				client:  &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))},
				path:    "/test",
				wantErr: "request failed",
			},
			{
				name: "Failed Response Body Read",
				client: &http.Client{Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil)},
				path:    "/test",
				wantErr: "failed to read response",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := NewAPIService("http://example.com", tt.client)
				for _, call := range []func() (*APIResponse, error){
					func() (*APIResponse, error) { return srv.Get(context.Background(), tt.path) },
					func() (*APIResponse, error) { return srv.Post(context.Background(), tt.path, []byte("{}")) },
				} {
					_, err := call()
					if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
						t.Errorf("expected %q error, got %v", tt.wantErr, err)
					}
				}
			})
		}

		t.Run("Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if _, err := NewAPIService(server.URL, nil).Get(ctx, "/test"); err == nil {
				t.Error("expected error for canceled context")
			}
		})
	})

	t.Run("ErrorMessage", func(t *testing.T) {
		tests := []struct {
			body string
			want string
		}{
			{`{"detail": "task not found"}`, "task not found"},
			{`{"error": "bad job"}`, "bad job"},
			{`{"other": 1}`, `{"other": 1}`},
			{"plain failure\n", "plain failure"},
		}
		for _, tt := range tests {
			resp := &APIResponse{Body: []byte(tt.body)}
			var data any
			if json.Unmarshal(resp.Body, &data) == nil {
				resp.IsJSON, resp.JSONData = true, data
			}
			if got := resp.ErrorMessage(); got != tt.want {
				t.Errorf("ErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
			}
		}
	})
}
