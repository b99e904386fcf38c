// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes players, progress and the lesson catalog over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/lessoncast/internal/api/middleware"
	"github.com/ManuGH/lessoncast/internal/bus"
	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/ManuGH/lessoncast/internal/health"
	xglog "github.com/ManuGH/lessoncast/internal/log"
	"github.com/ManuGH/lessoncast/internal/player"
	"github.com/ManuGH/lessoncast/internal/progress"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HeaderPrincipal identifies the learner a request acts for.
const HeaderPrincipal = "X-Principal"

// Config tunes the HTTP surface.
type Config struct {
	// RateLimit is requests per minute per client IP on /api; 0 disables it.
	RateLimit int
	// Autoplay is used when a start request does not say.
	Autoplay bool
	// TracingService names otelhttp spans; empty disables HTTP tracing.
	TracingService string
	// HeartbeatInterval spaces SSE keep-alive comments.
	HeartbeatInterval time.Duration
}

// Deps are the services behind the API. Players is required.
type Deps struct {
	Players  *player.Registry
	Progress progress.Store
	Bus      bus.Bus
	Catalog  catalog.Client
	// Health serves /healthz and /readyz; nil reports healthy without checks.
	Health *health.Manager
	// Mounts attaches extra handlers, e.g. the simulated backend.
	Mounts map[string]http.Handler
}

// Server is the HTTP control surface.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
	logger zerolog.Logger
}

// New builds the router.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Players == nil {
		return nil, errors.New("api: player registry is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	s := &Server{cfg: cfg, deps: deps, logger: xglog.WithComponent("api")}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())
	for prefix, h := range s.deps.Mounts {
		r.Mount(prefix, h)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.APIRateLimit(s.cfg.RateLimit))
		}

		r.Get("/players", s.handleListPlayers)
		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Delete("/", s.handleRemovePlayer)
			r.Post("/session", s.handleStartSession)
			r.Get("/session", s.handleGetSession)
			r.Delete("/session", s.handleDestroySession)
			r.Post("/session/retry", s.handleRetrySession)
			r.Get("/events", s.handleEvents)
		})

		r.Get("/progress/{lessonRef}", s.handleGetProgress)
		r.Delete("/progress/{lessonRef}", s.handleDeleteProgress)

		r.Get("/lessons/{lessonID}", s.handleLesson)
		r.Get("/courses/{courseID}/lessons", s.handleCourseLessons)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed on this route")
	})
	return r
}
