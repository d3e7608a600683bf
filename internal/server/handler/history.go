package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

// History rebuilds trade history from chain logs.
type History interface {
	History(ctx context.Context, curve string, w domain.PaginationWindow) (domain.HistoryPage, error)
	UserHistory(ctx context.Context, curve, trader string, w domain.PaginationWindow) (domain.HistoryPage, error)
	Recent(ctx context.Context, curve string, count int) ([]domain.TradeRecord, error)
}

// Exporter uploads history snapshots.
type Exporter interface {
	Export(ctx context.Context, curve string) (domain.HistoryExport, error)
	List(ctx context.Context, curve string) ([]domain.BlobInfo, error)
}

// StreamReader replays the durable trade stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// HistoryHandler serves trade history, exports and the trade feed. The
// curve gate is shared with TradingHandler.
type HistoryHandler struct {
	history  History
	exporter Exporter
	feed     StreamReader
	gate     *TradingHandler
	logger   *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler. exporter and feed may be nil,
// in which case their routes answer 503.
func NewHistoryHandler(history History, exporter Exporter, feed StreamReader, gate *TradingHandler, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, exporter: exporter, feed: feed, gate: gate, logger: logger}
}

// History returns a page of curve trades, newest first.
// GET /api/trading/history/{address}?limit=50&offset=0&type=buy
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	dir, ok := domain.ParseDirection(r.URL.Query().Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be buy or sell")
		return
	}
	curve := r.PathValue("address")
	tok, ok := h.gate.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	opts := parseListOpts(r)

	page, err := h.history.History(r.Context(), curve, domain.PaginationWindow{
		Limit:     opts.Limit,
		Offset:    opts.Offset,
		Direction: dir,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "history", err)
		return
	}
	writeOK(w, "", map[string]any{"history": page, "token": tok})
}

// UserHistory returns one trader's trades on a curve.
// GET /api/trading/history/{address}/user/{userAddress}
func (h *HistoryHandler) UserHistory(w http.ResponseWriter, r *http.Request) {
	curve := r.PathValue("address")
	tok, ok := h.gate.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	user := r.PathValue("userAddress")
	opts := parseListOpts(r)

	page, err := h.history.UserHistory(r.Context(), curve, user, domain.PaginationWindow{
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "user history", err)
		return
	}
	writeOK(w, "", map[string]any{"history": page, "user": user, "token": tok})
}

// Recent returns the latest trades on a curve.
// GET /api/trading/recent/{address}?count=10
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	curve := r.PathValue("address")
	tok, ok := h.gate.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))

	trades, err := h.history.Recent(r.Context(), curve, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "recent trades", err)
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeOK(w, "", map[string]any{"trades": trades, "token": tok})
}

// Export uploads the current history window to object storage.
// POST /api/trading/history/{address}/export
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "history export is not configured")
		return
	}
	curve := r.PathValue("address")
	if _, ok := h.gate.ensureCurve(w, r, curve); !ok {
		return
	}
	out, err := h.exporter.Export(r.Context(), curve)
	if err != nil {
		writeServiceError(w, r, h.logger, "export", err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "History exported", Data: out})
}

// Exports lists stored snapshots for a curve.
// GET /api/trading/history/{address}/exports
func (h *HistoryHandler) Exports(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "history export is not configured")
		return
	}
	curve := r.PathValue("address")
	if _, ok := h.gate.ensureCurve(w, r, curve); !ok {
		return
	}
	infos, err := h.exporter.List(r.Context(), curve)
	if err != nil {
		writeServiceError(w, r, h.logger, "list exports", err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeOK(w, "", map[string]any{"exports": infos})
}

type feedEntry struct {
	ID    string            `json:"id"`
	Event domain.TradeEvent `json:"event"`
}

// Feed replays confirmed operations from the trade stream.
// GET /api/trading/feed?last_id=0&count=100
func (h *HistoryHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "trade feed is not configured")
		return
	}
	q := r.URL.Query()
	lastID := q.Get("last_id")
	if lastID == "" {
		lastID = "0"
	}
	count := 100
	if n, err := strconv.Atoi(q.Get("count")); err == nil && n > 0 {
		count = min(n, 1000)
	}

	msgs, err := h.feed.StreamRead(r.Context(), domain.StreamTrades, lastID, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "feed", err)
		return
	}

	entries := make([]feedEntry, 0, len(msgs))
	next := lastID
	for _, m := range msgs {
		next = m.ID
		var evt domain.TradeEvent
		if err := json.Unmarshal(m.Payload, &evt); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping malformed feed entry",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries = append(entries, feedEntry{ID: m.ID, Event: evt})
	}
	writeOK(w, "", map[string]any{"events": entries, "lastId": next})
}
