package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TokenStore persists the curve/token registry.
type TokenStore interface {
	Upsert(ctx context.Context, token Token) error
	GetByCurve(ctx context.Context, curveAddress string) (Token, error)
	GetByToken(ctx context.Context, tokenAddress string) (Token, error)
	List(ctx context.Context, opts ListOpts) ([]Token, error)
}

// AuditEntry is a single audit log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
