// Package api exposes the daemon's HTTP surface: task submission, task
// status reads, single-frame previews, and a health probe.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"subclean/internal/config"
	"subclean/internal/logging"
	"subclean/internal/queue"
	"subclean/internal/workflow"
)

// framePreviewer is the seam between the preview route and the runner.
type framePreviewer interface {
	PreviewFrame(ctx context.Context, inputPath string, opts workflow.PreviewOptions) (workflow.Preview, error)
}

// Server serves the task API over HTTP.
type Server struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	router    *chi.Mux
	client    *http.Client
	previewer framePreviewer
}

// NewServer wires the API routes against the task store.
func NewServer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
		router: chi.NewRouter(),
		client: &http.Client{Timeout: 10 * time.Minute},
	}
	// Previews run synchronously in the request, so no deliverer is needed.
	s.previewer = workflow.NewCleanRunner(cfg, s.logger, nil)
	s.registerRoutes()
	return s
}

// Handler returns the routed HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/clean", s.handleClean)
	s.router.Post("/preview", s.handlePreview)
	s.router.Get("/tasks/{id}", s.handleTaskStatus)
	s.router.Get("/health", s.handleHealth)
}

// ListenAndServe blocks until the context is canceled or the listener fails.
// Cancellation drains in-flight requests before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Paths.APIBind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("api listening", logging.String("bind", s.cfg.Paths.APIBind))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
