package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lychee-technology/survey"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the FormManager over HTTP
type Server struct {
	manager  survey.FormManager
	exporter survey.Exporter
	health   func(ctx context.Context) error
	router   chi.Router
}

// NewServer creates a new Server instance with all routes registered
func NewServer(manager survey.FormManager, exporter survey.Exporter, auth survey.AuthConfig, health func(ctx context.Context) error) *Server {
	s := &Server{
		manager:  manager,
		exporter: exporter,
		health:   health,
		router:   chi.NewRouter(),
	}
	s.RegisterRoutes(auth)
	return s
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes(auth survey.AuthConfig) {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/forms", func(r chi.Router) {
		r.Use(actorMiddleware(auth.JWTSecret, auth.ActorHeader))

		r.Post("/", s.handleCreateForm)
		r.Get("/", s.handleListForms)
		r.Get("/by-slug/{slug}", s.handleGetFormBySlug)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetForm)
			r.Put("/active", s.handleSetActive)
			r.Post("/archive", s.handleArchiveForm)

			r.Get("/draft", s.handleLoadDraft)
			r.Put("/draft", s.handleSaveDraft)
			r.Delete("/draft", s.handleDiscardDraft)

			r.Post("/publish", s.handlePublish)

			r.Get("/versions", s.handleListVersions)
			r.Get("/versions/{version}", s.handleGetVersion)
			r.Post("/versions/{version}/revert", s.handleRevert)

			r.Post("/submissions", s.handleBindSubmission)
			r.Get("/submissions", s.handleListSubmissions)
			r.Get("/submissions.csv", s.handleExportCSV)
			r.Post("/exports", s.handleExportToS3)
		})
	})

	r.Get("/api/v1/submissions/{submissionID}", s.handleGetSubmission)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, cfg survey.ServerConfig) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("starting server", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	zap.S().Infow("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
