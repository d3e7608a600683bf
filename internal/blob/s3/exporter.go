package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

// multipartThreshold switches uploads to the transfer manager.
const multipartThreshold = 8 * 1024 * 1024

// HistorySource returns the full trade window for a curve.
type HistorySource interface {
	Snapshot(ctx context.Context, curve string) (domain.HistoryPage, error)
}

// HistoryExporter writes history snapshots to the blob store as JSONL, one
// TradeRecord per line, and records each upload in the audit log.
type HistoryExporter struct {
	history HistorySource
	writer  domain.BlobWriter
	lister  domain.BlobLister
	audit   domain.AuditStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewHistoryExporter creates a HistoryExporter. lister and audit may be nil.
func NewHistoryExporter(history HistorySource, writer domain.BlobWriter, lister domain.BlobLister, audit domain.AuditStore, logger *slog.Logger) *HistoryExporter {
	return &HistoryExporter{
		history: history,
		writer:  writer,
		lister:  lister,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// Export snapshots curve and uploads it to
// exports/trades/<curve>/<YYYY-MM-DD>/<unix>.jsonl. An empty window is still
// uploaded so every run leaves a marker.
func (e *HistoryExporter) Export(ctx context.Context, curve string) (domain.HistoryExport, error) {
	page, err := e.history.Snapshot(ctx, curve)
	if err != nil {
		return domain.HistoryExport{}, fmt.Errorf("s3blob: export %s: %w", curve, err)
	}

	buf, err := marshalJSONL(page.Trades)
	if err != nil {
		return domain.HistoryExport{}, fmt.Errorf("s3blob: export %s: %w", curve, err)
	}

	now := e.now().UTC()
	path := exportPath(curve, now)
	if len(buf) >= multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return domain.HistoryExport{}, fmt.Errorf("s3blob: export %s: %w", curve, err)
	}

	out := domain.HistoryExport{
		Curve:     strings.ToLower(curve),
		Path:      path,
		Count:     len(page.Trades),
		FromBlock: page.FromBlock,
		ToBlock:   page.ToBlock,
		CreatedAt: now,
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, "history_exported", map[string]any{
			"curve":      out.Curve,
			"path":       out.Path,
			"count":      out.Count,
			"from_block": out.FromBlock,
			"to_block":   out.ToBlock,
		}); err != nil {
			e.logger.WarnContext(ctx, "s3blob: audit export failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "s3blob: history exported",
		slog.String("curve", out.Curve),
		slog.String("path", path),
		slog.Int("count", out.Count),
	)
	return out, nil
}

// List returns the stored exports for curve, newest first.
func (e *HistoryExporter) List(ctx context.Context, curve string) ([]domain.BlobInfo, error) {
	if e.lister == nil {
		return nil, nil
	}
	infos, err := e.lister.List(ctx, exportPrefix(curve))
	if err != nil {
		return nil, fmt.Errorf("s3blob: list exports %s: %w", curve, err)
	}
	return infos, nil
}

func exportPrefix(curve string) string {
	return "exports/trades/" + strings.ToLower(curve) + "/"
}

// exportPath partitions by UTC day:
//
//	exports/trades/0xabc.../2025-01-31/1738281600.jsonl
func exportPath(curve string, at time.Time) string {
	return fmt.Sprintf("%s%s/%d.jsonl", exportPrefix(curve), at.Format("2006-01-02"), at.Unix())
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
