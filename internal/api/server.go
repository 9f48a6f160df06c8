// Package api serves run status, the live event stream and operator recovery
// decisions over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/portmark/internal/dispatch"
	"github.com/mattjoyce/portmark/internal/events"
	"github.com/mattjoyce/portmark/internal/operator"
	"github.com/mattjoyce/portmark/internal/runlog"
	"github.com/mattjoyce/portmark/internal/task"
)

// StatusSource exposes the live engine state.
type StatusSource interface {
	Status() dispatch.Status
	Pending() []task.Task
}

// RecoverySink accepts an operator decision while the controller is halted.
type RecoverySink interface {
	Waiting() bool
	Submit(ctx context.Context, d operator.Decision) error
}

// RunStore reads run history.
type RunStore interface {
	Get(ctx context.Context, id string) (*runlog.Run, error)
	List(ctx context.Context, limit int) ([]runlog.Run, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey protects every route except /healthz. Empty disables auth.
	APIKey string
	// SubmitTimeout bounds how long POST /recovery waits for the engine.
	SubmitTimeout time.Duration
}

// Deps are the collaborators the handlers read from. Recovery and Runs may be
// nil, in which case their routes answer 503.
type Deps struct {
	Status   StatusSource
	Events   *events.Hub
	Recovery RecoverySink
	Runs     RunStore
	Plan     PlanResponse
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = 5 * time.Second
	}
	if deps.Events == nil {
		deps.Events = events.NewHub(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled (blocking). A nil listener listens on
// Config.Listen.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.config.Listen, err)
		}
	}
	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/status", s.handleStatus)
		r.Get("/plan", s.handlePlan)
		r.Get("/events", s.handleEvents)
		r.Post("/recovery", s.handleRecovery)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/openapi.json", s.handleOpenAPI)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
