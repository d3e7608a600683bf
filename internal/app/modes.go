package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/server"
	"github.com/alanyoungcy/curvebot/internal/server/handler"
	"github.com/alanyoungcy/curvebot/internal/server/ws"
)

// exportPageSize is how many registered curves are listed per page when the
// periodic exporter walks the registry.
const exportPageSize = 100

// ServerMode serves the HTTP API and the WebSocket trade feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ExporterMode periodically uploads the trade history of every registered
// curve to object storage.
func (a *App) ExporterMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting exporter mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startExportLoop(ctx, g, deps); err != nil {
		return fmt.Errorf("exporter mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the API server and the periodic exporter together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startExportLoop(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the API server, and the WebSocket hub when a signal
// bus is wired, to g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "app: server.enabled is false, HTTP API not started")
		return
	}
	chainID := deps.Gateway.ChainID().Int64()

	trading := handler.NewTradingHandler(deps.Executor, deps.Market, a.logger).
		WithSecretLoader(operatorSecret(a.cfg))
	if deps.Registry != nil && a.cfg.Trading.RequireRegistered {
		trading = trading.WithRegistry(deps.Registry)
	}

	// Typed nil pointers must not reach the handler's interfaces.
	var exporter handler.Exporter
	if deps.Exporter != nil {
		exporter = deps.Exporter
	}
	var feed handler.StreamReader
	if deps.SignalBus != nil {
		feed = deps.SignalBus
	}

	h := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, chainID, deps.HealthChecks, a.logger),
		Trading: trading,
		History: handler.NewHistoryHandler(deps.History, exporter, feed, trading, a.logger),
	}
	if deps.Registry != nil {
		h.Tokens = handler.NewTokenHandler(deps.Registry, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			ChainID:        chainID,
			StartedAt:      time.Now().UTC(),
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "app: redis disabled, /ws and /api/trading/feed unavailable")
	}

	srv := server.NewServer(server.Config{
		Addr:            fmt.Sprintf(":%d", a.cfg.Server.Port),
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		WriteTimeout:    a.cfg.Server.WriteTimeout.Duration,
	}, h, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "app: HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.Int64("chain_id", chainID),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startExportLoop adds the periodic exporter to g.
func (a *App) startExportLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Exporter == nil {
		return fmt.Errorf("history export requires s3")
	}
	if deps.Registry == nil {
		return fmt.Errorf("history export requires the token registry")
	}
	interval := a.cfg.Export.Interval.Duration

	g.Go(func() error {
		a.logger.InfoContext(ctx, "app: export loop started", slog.Duration("interval", interval))
		if a.cfg.Export.RunOnStart {
			a.exportAll(ctx, deps)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.exportAll(ctx, deps)
			}
		}
	})
	return nil
}

// exportAll exports every registered curve once. A failing curve is logged
// and skipped.
func (a *App) exportAll(ctx context.Context, deps *Dependencies) {
	start := time.Now()
	var exported, failed int

	for offset := 0; ; offset += exportPageSize {
		toks, err := deps.Registry.List(ctx, domain.ListOpts{Limit: exportPageSize, Offset: offset})
		if err != nil {
			a.logger.ErrorContext(ctx, "app: export listing failed", slog.String("error", err.Error()))
			break
		}
		for _, tok := range toks {
			if ctx.Err() != nil {
				return
			}
			out, err := deps.Exporter.Export(ctx, tok.CurveAddress)
			if err != nil {
				failed++
				a.logger.WarnContext(ctx, "app: curve export failed",
					slog.String("curve", tok.CurveAddress),
					slog.String("error", err.Error()),
				)
				continue
			}
			exported++
			a.logger.DebugContext(ctx, "app: curve exported",
				slog.String("curve", tok.CurveAddress),
				slog.String("path", out.Path),
				slog.Int("trades", out.Count),
			)
		}
		if len(toks) < exportPageSize {
			break
		}
	}

	a.logger.InfoContext(ctx, "app: export pass complete",
		slog.Int("exported", exported),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)),
	)
	if failed > 0 && deps.Notifier.Enabled() {
		msg := fmt.Sprintf("%d of %d curve exports failed", failed, exported+failed)
		if err := deps.Notifier.Notify(ctx, "export_failed", "History export", msg); err != nil {
			a.logger.WarnContext(ctx, "app: notify failed", slog.String("error", err.Error()))
		}
	}
}
