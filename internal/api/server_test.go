package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spelhyllan/spelhyllan/internal/agent"
	"github.com/spelhyllan/spelhyllan/internal/log"
	"github.com/spelhyllan/spelhyllan/internal/thread"
)

type fakeAgent struct {
	mu       sync.Mutex
	response string
	err      error
	threads  []string
	messages []string
}

func (f *fakeAgent) Send(_ context.Context, threadID, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, threadID)
	f.messages = append(f.messages, message)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestServer(t *testing.T, a ChatAgent) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Agent: a, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func post(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStartChat(t *testing.T) {
	t.Parallel()

	a := &fakeAgent{response: "Hej! Vi har Catan."}
	srv := newTestServer(t, a)

	rec := post(t, srv, "/chat", `{"message": "har ni catan?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[newChatResponse](t, rec)
	if body.Response != "Hej! Vi har Catan." {
		t.Errorf("response = %q", body.Response)
	}
	if _, err := strconv.ParseInt(body.ThreadID, 10, 64); err != nil {
		t.Errorf("threadId %q is not unix millis", body.ThreadID)
	}
	if len(a.threads) != 1 || a.threads[0] != body.ThreadID {
		t.Errorf("agent got thread %v, response carried %q", a.threads, body.ThreadID)
	}
	if a.messages[0] != "har ni catan?" {
		t.Errorf("agent got message %q", a.messages[0])
	}
}

func TestContinueChat(t *testing.T) {
	t.Parallel()

	a := &fakeAgent{response: "Ja, 4 i lager."}
	srv := newTestServer(t, a)

	rec := post(t, srv, "/chat/1756400000000", `{"message": "finns det i lager?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[chatResponse](t, rec)
	if body.Response != "Ja, 4 i lager." {
		t.Errorf("response = %q", body.Response)
	}
	if a.threads[0] != "1756400000000" {
		t.Errorf("agent got thread %q, want the path value", a.threads[0])
	}
}

func TestChatBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "empty body", path: "/chat", body: ""},
		{name: "invalid JSON", path: "/chat", body: "{"},
		{name: "missing message", path: "/chat", body: `{}`},
		{name: "blank message", path: "/chat", body: `{"message": "   "}`},
		{name: "continue without message", path: "/chat/123", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := &fakeAgent{response: "ok"}
			srv := newTestServer(t, a)

			rec := post(t, srv, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(a.threads) != 0 {
				t.Error("agent was called for an invalid request")
			}
		})
	}
}

func TestChatErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "rate limited",
			err:        agent.ErrRateLimited,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   msgRateLimited,
		},
		{
			name:       "auth failed",
			err:        agent.ErrAuthFailed,
			wantStatus: http.StatusInternalServerError,
			wantBody:   msgInternalError,
		},
		{
			name:       "agent failed",
			err:        agent.ErrAgentFailed,
			wantStatus: http.StatusInternalServerError,
			wantBody:   msgInternalError,
		},
		{
			name:       "wrapped rate limit",
			err:        errors.Join(agent.ErrRateLimited, errors.New("429")),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   msgRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, &fakeAgent{err: tt.err})

			rec := post(t, srv, "/chat", `{"message": "hej"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeBody[errorResponse](t, rec)
			if body.Error != tt.wantBody {
				t.Errorf("error = %q, want %q", body.Error, tt.wantBody)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAgent{})
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAgent{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody[healthResponse](t, rec); body.Status != "ok" {
		t.Errorf("status field = %q", body.Status)
	}
}

func TestReadyzWithoutPool(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAgent{})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no pool is configured", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAgent{response: "ok"})

	t.Run("generated", func(t *testing.T) {
		rec := post(t, srv, "/chat", `{"message": "hej"}`)
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("no X-Request-ID header assigned")
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "hej"}`))
		req.Header.Set("X-Request-ID", "given-id")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "given-id" {
			t.Errorf("X-Request-ID = %q, want the caller's ID", got)
		}
	})
}

type fakeThreads struct {
	thread *thread.Thread
	err    error
}

func (f *fakeThreads) Get(_ context.Context, threadID string) (*thread.Thread, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.thread == nil || f.thread.ID != threadID {
		return nil, fmt.Errorf("thread %q: %w", threadID, pgx.ErrNoRows)
	}
	return f.thread, nil
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestGetThread(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	ts := &fakeThreads{thread: &thread.Thread{
		ID:           "1756400000000",
		CreatedAt:    created,
		UpdatedAt:    created.Add(time.Minute),
		MessageCount: 4,
	}}
	srv, err := NewServer(ServerConfig{Agent: &fakeAgent{}, Threads: ts, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := get(t, srv, "/chat/1756400000000")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[threadResponse](t, rec)
	if body.ThreadID != "1756400000000" || body.MessageCount != 4 {
		t.Errorf("body = %+v", body)
	}
	if !body.CreatedAt.Equal(created) {
		t.Errorf("createdAt = %v, want %v", body.CreatedAt, created)
	}
}

func TestGetThreadNotFound(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(ServerConfig{Agent: &fakeAgent{}, Threads: &fakeThreads{}, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := get(t, srv, "/chat/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if body := decodeBody[errorResponse](t, rec); body.Error != "Thread not found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestGetThreadStoreFailure(t *testing.T) {
	t.Parallel()

	ts := &fakeThreads{err: thread.ErrUnavailable}
	srv, err := NewServer(ServerConfig{Agent: &fakeAgent{}, Threads: ts, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := get(t, srv, "/chat/123")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetThreadDisabledWithoutStore(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAgent{})
	rec := get(t, srv, "/chat/123")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405 when metadata reads are not wired", rec.Code)
	}
}

type panicAgent struct{}

func (panicAgent) Send(context.Context, string, string) (string, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, panicAgent{})
	rec := post(t, srv, "/chat", `{"message": "hej"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after panic", rec.Code)
	}
	if body := decodeBody[errorResponse](t, rec); body.Error != msgInternalError {
		t.Errorf("error = %q", body.Error)
	}
}
