// Package api exposes the shop assistant over HTTP.
//
// Routes:
//
//	POST /chat             start a conversation, returns the thread ID
//	POST /chat/{threadId}  continue an existing conversation
//	GET  /chat/{threadId}  thread metadata
//	GET  /healthz          liveness
//	GET  /readyz           readiness, checks the database
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains the dependencies of the HTTP server.
type ServerConfig struct {
	Agent   ChatAgent     // Required
	Threads ThreadStore   // Optional: nil disables GET /chat/{threadId}
	Pool    *pgxpool.Pool // Optional: nil degrades /readyz to a liveness check
	Logger  *slog.Logger
}

// Server is the JSON API server. It implements http.Handler.
type Server struct {
	handler http.Handler
}

// NewServer wires routes and middleware.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("chat agent is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{agent: cfg.Agent, logger: logger, now: time.Now}
	hh := &healthHandler{pool: cfg.Pool, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", ch.startChat)
	mux.HandleFunc("POST /chat/{threadId}", ch.continueChat)
	if cfg.Threads != nil {
		th := &threadHandler{threads: cfg.Threads, logger: logger}
		mux.HandleFunc("GET /chat/{threadId}", th.getThread)
	}
	mux.HandleFunc("GET /healthz", hh.healthz)
	mux.HandleFunc("GET /readyz", hh.readyz)

	// Outermost first: recovery must wrap everything, logging should
	// see the request ID.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
