// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"wiresum/internal/app"
	"wiresum/internal/auth"
	"wiresum/internal/classifier"
	"wiresum/internal/database"
	"wiresum/internal/metrics"
	"wiresum/internal/scheduler"
)

type Config struct {
	// ServerURL is the public base URL used in the RSS channel.
	ServerURL string
	// Verifier enables bearer-token auth when set.
	Verifier *auth.Verifier
	Version  string
}

type Server struct {
	db        *database.DB
	engine    *classifier.Engine
	scheduler *scheduler.Scheduler
	registry  *prometheus.Registry
	logger    zerolog.Logger
	config    Config
	now       func() time.Time

	httpServer *http.Server
}

func NewServer(a *app.App, config Config) *Server {
	if config.Version == "" {
		config.Version = app.Version
	}
	config.ServerURL = strings.TrimRight(config.ServerURL, "/")
	return &Server{
		db:        a.DB,
		engine:    a.Engine,
		scheduler: a.Scheduler,
		registry:  a.Registry,
		logger:    a.Logger.With().Str("component", "http").Logger(),
		config:    config,
		now:       time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler(s.registry))

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/entries", s.handleListEntries)
		r.Post("/entries/requeue", s.handleRequeue)
		r.Get("/entries/{id}", s.handleGetEntry)
		r.Post("/entries/{id}/reprocess", s.handleReprocess)
		r.Post("/entries/{id}/read", s.handleMarkRead)

		r.Get("/digest", s.handleDigest)
		r.Get("/stats", s.handleStats)
		r.Post("/sync", s.handleSync)
		r.Post("/classify", s.handleClassify)
		r.Get("/feed.xml", s.handleRSS)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleUpdateConfig)

		r.Get("/interests", s.handleListInterests)
		r.Post("/interests", s.handleCreateInterest)
		r.Put("/interests/{key}", s.handleUpdateInterest)
		r.Delete("/interests/{key}", s.handleDeleteInterest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Manual sync and classify run inside the request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
