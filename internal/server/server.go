// Package server exposes the trading engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/metrics"
	"github.com/alanyoungcy/curvebot/internal/server/handler"
	"github.com/alanyoungcy/curvebot/internal/server/middleware"
	"github.com/alanyoungcy/curvebot/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr            string
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	RateLimit       int
	RateLimitWindow time.Duration
	// WriteTimeout bounds a whole request including trade confirmation.
	WriteTimeout time.Duration
}

// Handlers aggregates the route handlers. Tokens may be nil when no
// registry is configured.
type Handlers struct {
	Health  *handler.HealthHandler
	Tokens  *handler.TokenHandler
	Trading *handler.TradingHandler
	History *handler.HistoryHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, auth
// and (when limiter is non-nil) rate limiting, outermost first.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := Routes(h, hub)

	var root http.Handler = metrics.InstrumentHandler(mux)
	if limiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(root)
	}
	root = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the route table.
func Routes(h Handlers, hub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	if h.Tokens != nil {
		mux.HandleFunc("GET /api/tokens", h.Tokens.ListTokens)
		mux.HandleFunc("GET /api/tokens/{address}", h.Tokens.GetToken)
		mux.HandleFunc("POST /api/tokens", h.Tokens.RegisterToken)
	}

	t := h.Trading
	mux.HandleFunc("GET /api/trading/quote/buy/{address}", t.BuyQuote)
	mux.HandleFunc("GET /api/trading/quote/sell/{address}", t.SellQuote)
	mux.HandleFunc("POST /api/trading/buy/{address}", t.Buy)
	mux.HandleFunc("POST /api/trading/sell/{address}", t.Sell)
	mux.HandleFunc("POST /api/trading/approve/{tokenAddress}", t.Approve)
	mux.HandleFunc("GET /api/trading/balance/{tokenAddress}/{userAddress}", t.Balance)
	mux.HandleFunc("GET /api/trading/allowance/{tokenAddress}/{owner}/{spender}", t.Allowance)
	mux.HandleFunc("GET /api/trading/token/{tokenAddress}", t.TokenInfo)
	mux.HandleFunc("GET /api/trading/curve/{address}", t.CurveInfo)
	mux.HandleFunc("GET /api/trading/curve/{address}/diagnostics", t.Diagnostics)

	hist := h.History
	mux.HandleFunc("GET /api/trading/history/{address}", hist.History)
	mux.HandleFunc("GET /api/trading/history/{address}/user/{userAddress}", hist.UserHistory)
	mux.HandleFunc("POST /api/trading/history/{address}/export", hist.Export)
	mux.HandleFunc("GET /api/trading/history/{address}/exports", hist.Exports)
	mux.HandleFunc("GET /api/trading/recent/{address}", hist.Recent)
	mux.HandleFunc("GET /api/trading/feed", hist.Feed)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	return mux
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
