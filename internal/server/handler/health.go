package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check is one dependency probe, e.g. a database ping.
type Check func(ctx context.Context) error

// HealthHandler serves liveness plus dependency probes.
type HealthHandler struct {
	mode      string
	chainID   int64
	startedAt time.Time
	checks    map[string]Check
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks may be nil.
func NewHealthHandler(mode string, chainID int64, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		chainID:   chainID,
		startedAt: time.Now().UTC(),
		checks:    checks,
		logger:    logger,
	}
}

// HealthCheck reports "ok" or, when any probe fails, "degraded" with 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			results[name] = "error"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"mode":           h.mode,
		"chainId":        h.chainID,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"checks":         results,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
