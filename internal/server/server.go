package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/database"
	"github.com/agentrace/agentrace/internal/events"
	"github.com/agentrace/agentrace/internal/modules/agents"
	"github.com/agentrace/agentrace/internal/modules/equity"
	"github.com/agentrace/agentrace/internal/modules/ledger"
	"github.com/agentrace/agentrace/internal/orchestrator"
)

// Config holds server configuration
type Config struct {
	Port         int
	DevMode      bool
	Log          zerolog.Logger
	Databases    map[string]*database.DB
	Bus          *events.Bus
	AgentRepo    *agents.Repository
	LedgerSvc    *ledger.Service
	EquitySvc    *equity.Service
	Orchestrator *orchestrator.Orchestrator
	InstanceRepo *orchestrator.InstanceRepository
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)

	raceHandler := NewHandler(cfg.AgentRepo, cfg.LedgerSvc, cfg.EquitySvc, cfg.Orchestrator, cfg.InstanceRepo, cfg.Log)
	systemHandlers := NewSystemHandlers(cfg.Databases, cfg.Log)
	eventsStream := NewEventsStreamHandler(cfg.Bus, cfg.Log)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events/ws", eventsStream.ServeHTTP)
		r.Get("/system/health", systemHandlers.HandleHealth)
		raceHandler.RegisterRoutes(r)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket stream holds connections open
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// loggingMiddleware logs each request with status and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// Router exposes the router for tests
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for requests. Blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
