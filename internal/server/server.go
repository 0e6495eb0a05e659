// Package server exposes the arbitrage core over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/arbot/internal/server/handler"
	"github.com/alanyoungcy/arbot/internal/server/middleware"
	"github.com/alanyoungcy/arbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Books         *handler.BookHandler
	Trades        *handler.TradeHandler
	Opportunities *handler.OpportunityHandler
	Performance   *handler.PerformanceHandler
}

// Server is the headless HTTP + WebSocket API for the arbitrage core.
type Server struct {
	inner  *http.Server
	logger *slog.Logger
}

// NewServer registers all routes and wraps them in the CORS, logging and
// auth middleware chain, outermost first.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := routes(handlers, wsHub)

	chain := middleware.Auth(cfg.APIKey)(mux)
	chain = middleware.Logging(logger)(chain)
	chain = cors(cfg.CORSOrigins)(chain)

	return &Server{
		inner: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      chain,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func routes(h Handlers, wsHub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/books", h.Books.IngestBook)
	mux.HandleFunc("GET /api/books/{instrument}", h.Books.GetSnapshot)

	// The scan route must register before the {id} wildcard sibling.
	mux.HandleFunc("GET /api/opportunities", h.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/opportunities/scan/{instrument}", h.Opportunities.Scan)
	mux.HandleFunc("GET /api/opportunities/{id}", h.Opportunities.Get)

	mux.HandleFunc("POST /api/trades", h.Trades.RecordTrade)
	mux.HandleFunc("GET /api/trades", h.Trades.ListRecent)

	mux.HandleFunc("GET /api/performance/metrics", h.Performance.GetMetrics)
	mux.HandleFunc("GET /api/performance/comparison", h.Performance.GetComparison)
	mux.HandleFunc("GET /api/performance/daily", h.Performance.GetDailyPnL)
	mux.HandleFunc("GET /api/performance/report", h.Performance.GetReport)

	mux.Handle("GET /metrics", promhttp.Handler())

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	return mux
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.logger.Info("server: listening", slog.String("addr", s.inner.Addr))
	err := s.inner.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.inner.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// cors answers preflight requests and stamps allow headers on responses to
// permitted origins. An empty allowlist permits every origin.
func cors(allowlist []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(allowlist, origin) {
				hdr := w.Header()
				hdr.Set("Access-Control-Allow-Origin", origin)
				hdr.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
				hdr.Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowlist []string, origin string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, o := range allowlist {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
