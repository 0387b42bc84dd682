package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"browsercron/internal/core"
	"browsercron/internal/store"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	orch       *core.Orchestrator
	store      *store.Store
	metrics    http.Handler
	logger     *slog.Logger
	location   *time.Location
	authToken  string
}

// NewServer constructs the HTTP API server. metrics may be nil, in which case
// /metrics is not mounted.
func NewServer(addr string, authToken string, orch *core.Orchestrator, store *store.Store, metrics http.Handler, logger *slog.Logger, location *time.Location) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	if location == nil {
		location = time.Local
	}
	s := &Server{
		router:    router,
		orch:      orch,
		store:     store,
		metrics:   metrics,
		logger:    logger,
		location:  location,
		authToken: authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Manual runs are answered synchronously and may take minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Post("/schedule/preview", s.handleSchedulePreview)

		r.Route("/configs", func(r chi.Router) {
			r.Get("/", s.handleListConfigs)
			r.Post("/", s.handleCreateConfig)

			r.Route("/{configID}", func(r chi.Router) {
				r.Get("/", s.handleGetConfig)
				r.Put("/", s.handleUpdateConfig)
				r.Delete("/", s.handleDeleteConfig)
				r.Post("/run", s.handleRunConfig)
				r.Post("/toggle", s.handleToggleConfig)
				r.Get("/status", s.handleConfigStatus)
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListResults)
			r.Route("/{resultID}", func(r chi.Router) {
				r.Get("/", s.handleGetResult)
				r.Delete("/", s.handleDeleteResult)
				r.Get("/screenshots/{index}", s.handleResultScreenshot)
			})
		})
	})
}
