package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/curvebot/internal/chain"
	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/metrics"
	"github.com/alanyoungcy/curvebot/internal/units"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

const (
	// DefaultHistoryWindow is how many blocks back history is rebuilt from.
	DefaultHistoryWindow uint64 = 10_000

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	defaultRecentCount  = 10
)

// HistoryAggregator rebuilds a curve's trade ledger from event logs on every
// call. There is no cache: each call scans the last window blocks and looks
// up one block header per distinct block that holds a trade, so latency
// grows with trading activity inside the window.
type HistoryAggregator struct {
	chain   ChainReader
	decoder *chain.Decoder
	window  uint64
	logger  *slog.Logger
}

// NewHistoryAggregator creates a HistoryAggregator. A zero window selects
// DefaultHistoryWindow.
func NewHistoryAggregator(reader ChainReader, window uint64, logger *slog.Logger) *HistoryAggregator {
	if window == 0 {
		window = DefaultHistoryWindow
	}
	return &HistoryAggregator{
		chain:   reader,
		decoder: chain.NewDecoder(),
		window:  window,
		logger:  logger,
	}
}

// History returns one page of curve trades, newest first, optionally
// filtered by direction.
func (s *HistoryAggregator) History(ctx context.Context, curve string, w domain.PaginationWindow) (domain.HistoryPage, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("history: %w", err)
	}
	return s.page(ctx, addr, nil, w)
}

// UserHistory is History restricted to one trader via the indexed user topic.
func (s *HistoryAggregator) UserHistory(ctx context.Context, curve, trader string, w domain.PaginationWindow) (domain.HistoryPage, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("history: curve: %w", err)
	}
	user, err := wallet.ParseAddress(trader)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("history: trader: %w", err)
	}
	return s.page(ctx, addr, &user, w)
}

// Recent returns the newest count trades. count <= 0 selects 10.
func (s *HistoryAggregator) Recent(ctx context.Context, curve string, count int) ([]domain.TradeRecord, error) {
	if count <= 0 {
		count = defaultRecentCount
	}
	page, err := s.History(ctx, curve, domain.PaginationWindow{Limit: count})
	if err != nil {
		return nil, err
	}
	return page.Trades, nil
}

// Snapshot returns every trade in the window, newest first, for export.
func (s *HistoryAggregator) Snapshot(ctx context.Context, curve string) (domain.HistoryPage, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("history: %w", err)
	}
	records, from, to, err := s.scan(ctx, addr, nil, "")
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return domain.HistoryPage{
		Trades:    records,
		Total:     len(records),
		Limit:     len(records),
		FromBlock: from,
		ToBlock:   to,
	}, nil
}

func (s *HistoryAggregator) page(ctx context.Context, curve common.Address, trader *common.Address, w domain.PaginationWindow) (domain.HistoryPage, error) {
	w = normalizeWindow(w)

	records, from, to, err := s.scan(ctx, curve, trader, w.Direction)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return paginate(records, w, from, to), nil
}

// scan fetches, decodes, timestamps and sorts every trade in the window.
func (s *HistoryAggregator) scan(ctx context.Context, curve common.Address, trader *common.Address, dir domain.Direction) ([]domain.TradeRecord, uint64, uint64, error) {
	current, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("history: %w", err)
	}
	var from uint64
	if current > s.window {
		from = current - s.window
	}

	q := chain.LogQuery{Curve: curve, FromBlock: from, ToBlock: current, Trader: trader}
	switch dir {
	case domain.DirectionBuy:
		q.Events = []string{chain.EventTokensPurchased}
	case domain.DirectionSell:
		q.Events = []string{chain.EventTokensSold}
	}

	logs, err := s.chain.TradeLogs(ctx, q)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("history: %w", err)
	}
	metrics.ObserveHistoryScan(len(logs))

	// Block timestamps are memoized for this call only.
	timestamps := make(map[uint64]int64)
	records := make([]domain.TradeRecord, 0, len(logs))
	for _, lg := range logs {
		rec, ok, err := s.record(lg)
		if err != nil {
			s.logger.WarnContext(ctx, "history: skipping undecodable log",
				slog.String("tx_hash", lg.TxHash.Hex()),
				slog.Uint64("log_index", uint64(lg.Index)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		ts, seen := timestamps[lg.BlockNumber]
		if !seen {
			ts, err = s.chain.BlockTimestamp(ctx, lg.BlockNumber)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("history: %w", err)
			}
			timestamps[lg.BlockNumber] = ts
		}
		rec.Timestamp = ts
		records = append(records, rec)
	}

	sortNewestFirst(records)

	s.logger.DebugContext(ctx, "history: rebuilt ledger",
		slog.String("curve", curve.Hex()),
		slog.Uint64("from_block", from),
		slog.Uint64("to_block", current),
		slog.Int("logs", len(logs)),
		slog.Int("trades", len(records)),
	)
	return records, from, current, nil
}

// record converts a log into a TradeRecord. ok is false for logs that are
// not trades.
func (s *HistoryAggregator) record(lg types.Log) (domain.TradeRecord, bool, error) {
	ev, err := s.decoder.Decode(lg)
	if err != nil {
		return domain.TradeRecord{}, false, err
	}

	rec := domain.TradeRecord{
		ID:          lg.TxHash.Hex() + "-" + strconv.FormatUint(uint64(lg.Index), 10),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
	}
	switch e := ev.(type) {
	case chain.Purchased:
		rec.Trader = wallet.Lower(e.User)
		rec.Direction = domain.DirectionBuy
		rec.EthAmount = units.Ether.FromFixedPoint(e.EthAmount)
		rec.TokenAmount = units.Ether.FromFixedPoint(e.TokensOut)
		rec.FeeAmount = "0"
	case chain.Sold:
		rec.Trader = wallet.Lower(e.User)
		rec.Direction = domain.DirectionSell
		rec.EthAmount = units.Ether.FromFixedPoint(e.EthOut)
		rec.TokenAmount = units.Ether.FromFixedPoint(e.TokensIn)
		rec.FeeAmount = units.Ether.FromFixedPoint(e.Fee)
	default:
		return domain.TradeRecord{}, false, nil
	}
	return rec, true, nil
}

// sortNewestFirst orders by timestamp, then block, then log index, all
// descending.
func sortNewestFirst(records []domain.TradeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		return a.LogIndex > b.LogIndex
	})
}

func normalizeWindow(w domain.PaginationWindow) domain.PaginationWindow {
	if w.Limit <= 0 {
		w.Limit = defaultHistoryLimit
	}
	if w.Limit > maxHistoryLimit {
		w.Limit = maxHistoryLimit
	}
	if w.Offset < 0 {
		w.Offset = 0
	}
	return w
}

// paginate slices [offset, offset+limit) out of sorted records.
func paginate(records []domain.TradeRecord, w domain.PaginationWindow, from, to uint64) domain.HistoryPage {
	total := len(records)
	start := min(w.Offset, total)
	end := start + min(w.Limit, total-start)

	return domain.HistoryPage{
		Trades:    records[start:end],
		Total:     total,
		HasMore:   w.Offset < total-w.Limit,
		Limit:     w.Limit,
		Offset:    w.Offset,
		FromBlock: from,
		ToBlock:   to,
	}
}
