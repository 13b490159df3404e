package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server/handler"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server/middleware"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the number of requests a client IP may issue per
	// RateWindow. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Industries  *handler.IndustryHandler
	Predictions *handler.PredictionHandler
	Stats       *handler.StatsHandler
	Analysis    *handler.AnalysisHandler
	Export      *handler.ExportHandler
	Audit       *handler.AuditHandler
	Events      *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server of the prediction tracker.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on a ServeMux
// behind the CORS, logging, auth and rate-limit middleware. limiter and
// wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("GET /api/industries", handlers.Industries.ListIndustries)
	mux.HandleFunc("GET /api/industries/open-today", handlers.Industries.OpenToday)
	mux.HandleFunc("GET /api/industries/{id}", handlers.Industries.GetIndustry)
	mux.HandleFunc("POST /api/industries", handlers.Industries.CreateIndustry)
	mux.HandleFunc("PUT /api/industries/{id}", handlers.Industries.RenameIndustry)
	mux.HandleFunc("DELETE /api/industries/{id}", handlers.Industries.DeleteIndustry)

	mux.HandleFunc("GET /api/predictions", handlers.Predictions.ListPredictions)
	mux.HandleFunc("GET /api/predictions/pending", handlers.Predictions.ListPending)
	mux.HandleFunc("GET /api/predictions/{id}", handlers.Predictions.GetPrediction)
	mux.HandleFunc("POST /api/predictions", handlers.Predictions.CreatePrediction)
	mux.HandleFunc("PUT /api/predictions/{id}/outcome", handlers.Predictions.RecordOutcome)
	mux.HandleFunc("DELETE /api/predictions/{id}", handlers.Predictions.DeletePrediction)

	mux.HandleFunc("GET /api/stats", handlers.Stats.GetStats)
	mux.HandleFunc("GET /api/stats/industries/{id}", handlers.Stats.GetIndustryStats)

	if handlers.Analysis != nil {
		mux.HandleFunc("GET /api/analysis", handlers.Analysis.Analyze)
		mux.HandleFunc("GET /api/analysis/stream", handlers.Analysis.Stream)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}
	if handlers.Export != nil {
		mux.HandleFunc("POST /api/export/trigger", handlers.Export.TriggerExport)
		mux.HandleFunc("GET /api/exports", handlers.Export.ListExports)
		mux.HandleFunc("GET /api/exports/{path...}", handlers.Export.DownloadExport)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// No Read/WriteTimeout: analysis streams stay open for minutes.
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
