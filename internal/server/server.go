// Package server provides the HTTP surface: REST routes for every module,
// the WebSocket subscriber endpoint and process health.
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

	"vantage/internal/broker/saxo"
	"vantage/internal/config"
	"vantage/internal/database"
	"vantage/internal/modules/alerts"
	alertshandlers "vantage/internal/modules/alerts/handlers"
	"vantage/internal/modules/backtest"
	backtesthandlers "vantage/internal/modules/backtest/handlers"
	"vantage/internal/modules/indicators"
	indicatorshandlers "vantage/internal/modules/indicators/handlers"
	"vantage/internal/modules/journal"
	journalhandlers "vantage/internal/modules/journal/handlers"
	"vantage/internal/modules/montecarlo"
	montecarlohandlers "vantage/internal/modules/montecarlo/handlers"
	"vantage/internal/modules/portfolio"
	portfoliohandlers "vantage/internal/modules/portfolio/handlers"
	"vantage/internal/quotes"
	"vantage/internal/regime"
	regimehandlers "vantage/internal/regime/handlers"
	"vantage/internal/stream"
	streamhandlers "vantage/internal/stream/handlers"
	"vantage/internal/tokens"
)

// Config wires the server to the constructed services
type Config struct {
	Log zerolog.Logger
	Cfg *config.Config

	JournalDB *database.DB
	CacheDB   *database.DB

	TokenManager *tokens.Manager
	Auth         *saxo.AuthClient
	Provider     quotes.Provider
	Indicators   *indicators.Engine
	Portfolio    *portfolio.Service
	Journal      *journal.Service
	Backtest     *backtest.Service
	MonteCarlo   *montecarlo.Service
	AlertConfig  *alerts.ConfigStore
	AlertHistory *alerts.HistoryStore
	Regime       *regime.Detector
	Streamer     *stream.Streamer
}

// Server is the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       Config
	startedAt time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg,
		startedAt: time.Now(),
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// The WebSocket endpoint sits outside /api: it upgrades and hands the
	// connection to the streamer's hub, no JSON middleware applies.
	s.router.Get("/ws", s.handleWebSocket)

	authHandlers := NewAuthHandlers(s.cfg.TokenManager, s.cfg.Auth, s.log)

	s.router.Route("/api", func(r chi.Router) {
		// Request handlers get a deadline; long engines (backtest, Monte
		// Carlo) check ctx at loop boundaries and abort with the request.
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", s.handleHealth)
		authHandlers.RegisterRoutes(r)

		indicatorshandlers.NewHandler(s.cfg.Provider, s.cfg.Indicators, s.log).RegisterRoutes(r)
		portfoliohandlers.NewHandler(s.cfg.Portfolio, s.log).RegisterRoutes(r)
		montecarlohandlers.NewHandler(s.cfg.MonteCarlo, s.log).RegisterRoutes(r)
		backtesthandlers.NewHandler(s.cfg.Backtest, s.log).RegisterRoutes(r)
		journalhandlers.NewHandler(s.cfg.Journal, s.log).RegisterRoutes(r)
		alertshandlers.NewHandler(s.cfg.AlertConfig, s.cfg.AlertHistory, s.log).RegisterRoutes(r)
		regimehandlers.NewHandler(s.cfg.Regime, s.log).RegisterRoutes(r)
		streamhandlers.NewHandler(s.cfg.Streamer, s.log).RegisterRoutes(r)
	})
}

// Start begins listening; it blocks until the listener fails or Shutdown
// is called
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context's deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// databases lists the stores the health endpoint probes
func (s *Server) databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if s.cfg.JournalDB != nil {
		dbs["journal"] = s.cfg.JournalDB
	}
	if s.cfg.CacheDB != nil {
		dbs["cache"] = s.cfg.CacheDB
	}
	return dbs
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
