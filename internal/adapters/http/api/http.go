// Package api serves the read-only guild stats API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	service "github.com/GungHo1205/manarion-guild-stats/internal/app"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	StatsProvider
	ReadinessChecker

	GuildData(ctx context.Context) (service.GuildData, error)
	DailyBaseline(ctx context.Context, date model.Date) (model.DailyBaseline, error)
	HistoricalData(ctx context.Context, hours int) (service.History, error)
	GuildHistory(ctx context.Context, names []string, hours int) ([]model.HistoryPoint, error)
	MarketPrices(ctx context.Context, hours int) ([]model.PricePoint, error)
}

// Server wires HTTP routes for the read API.
type Server struct {
	deps           Dependencies
	allowedOrigins []string
	logger         logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	guildsHandler *GuildsHandler
	historyHandle *HistoryHandler
}

// Option configures the Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allowed origins. Defaults to "*".
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = append([]string(nil), origins...)
		}
	}
}

// WithLogger sets the logger used for handler errors.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, allowedOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.guildsHandler = NewGuildsHandler(deps, s.logger)
	s.historyHandle = NewHistoryHandler(deps, s.logger)
	return s
}

// Router builds a chi router with the middleware stack and all API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	s.Register(r)
	return r
}

// Register attaches the API routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/guild-data", MetricsMiddleware(s.guildsHandler.HandleGuildData, "guild_data"))
		r.Get("/daily-baseline", MetricsMiddleware(s.guildsHandler.HandleDailyBaseline, "daily_baseline"))
		r.Get("/historical-data", MetricsMiddleware(s.historyHandle.HandleHistoricalData, "historical_data"))
		r.Get("/guild-history", MetricsMiddleware(s.historyHandle.HandleGuildHistory, "guild_history"))
		r.Get("/market-prices", MetricsMiddleware(s.historyHandle.HandleMarketPrices, "market_prices"))
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, ErrEndpointNotFound)
		})
	})
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Status: status})
}

// writeServiceError maps service errors to HTTP statuses. Unexpected errors
// are logged and reported without detail.
func writeServiceError(ctx context.Context, w http.ResponseWriter, l logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNoData):
		writeError(w, http.StatusNotFound, ErrNoGuildData)
	case errors.Is(err, service.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err)
	default:
		l.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, ErrInternal)
	}
}
