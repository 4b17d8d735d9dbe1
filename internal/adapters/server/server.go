// Package server exposes the insight service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/ports"
)

// Options configures the HTTP listener
type Options struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// HTTPServer serves the insight API
type HTTPServer struct {
	service  ports.InsightService
	messages ports.MessageSource
	opts     Options
	logger   *zap.Logger
	router   chi.Router
	server   *http.Server
}

// NewHTTPServer creates a new HTTPServer
func NewHTTPServer(service ports.InsightService, messages ports.MessageSource, opts Options, logger *zap.Logger) *HTTPServer {
	s := &HTTPServer{
		service:  service,
		messages: messages,
		opts:     opts,
		logger:   logger,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:         opts.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept", headerUserEmail, headerRequestID},
		ExposedHeaders: []string{headerRequestID},
	}).Handler)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/insights", s.handleInsights)
		r.Get("/insights/history", s.handleHistory)
		r.Delete("/insights/cache", s.handleInvalidate)
		r.Get("/messages", s.handleMessages)
	})
	return r
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start implements ports.Server. It blocks until the server is stopped.
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting insight API", zap.String("address", s.opts.ListenAddress))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop implements ports.Server
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down insight API")
	return s.server.Shutdown(ctx)
}
