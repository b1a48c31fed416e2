// Package server exposes the portal read-models and the assistant relay over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Its-donkey/campus-portal/internal/assistant"
	"github.com/Its-donkey/campus-portal/internal/readmodel"
	"github.com/Its-donkey/campus-portal/internal/tables"
	"github.com/Its-donkey/campus-portal/logging"
)

const (
	logCategory     = "server"
	shutdownTimeout = 5 * time.Second
	maxRequestBody  = 1 << 20
)

// Options configures the portal server.
type Options struct {
	Listen    string
	Logger    *logging.Logger
	Store     *tables.Store
	Assistant *assistant.Reader
}

// Server serves the portal API.
type Server struct {
	logger    *logging.Logger
	store     *tables.Store
	assistant *assistant.Reader

	mu      sync.Mutex
	courses *readmodel.CourseListing
}

// New builds a Server. Store is required; Assistant may be nil, in which
// case the relay answers 503.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{logger: logger, store: opts.Store, assistant: opts.Assistant}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/courses", s.handleCourses)
	mux.HandleFunc("GET /api/grades", s.handleGrades)
	mux.HandleFunc("POST /api/tables/invalidate", s.handleInvalidate)
	mux.HandleFunc("POST /api/assistant", s.handleAssistant)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	return logging.Middleware(s.logger, mux)
}

// courseListing returns the shared listing, creating it on first use so the
// projection stays memoized across requests.
func (s *Server) courseListing(ctx context.Context) (*readmodel.CourseListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.courses != nil {
		return s.courses, nil
	}
	listing, err := readmodel.NewCourseListing(tables.WithStore(ctx, s.store))
	if err != nil {
		return nil, err
	}
	s.courses = listing
	return listing, nil
}

// Run serves on opts.Listen until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, opts Options) error {
	s := New(opts)
	httpServer := &http.Server{
		Addr:              opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info(logCategory, "portal listening", map[string]any{"addr": opts.Listen})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
