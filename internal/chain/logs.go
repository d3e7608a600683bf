package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/curvebot/internal/metrics"
)

// LogQuery selects curve event logs in an inclusive block range.
type LogQuery struct {
	Curve     common.Address
	FromBlock uint64
	ToBlock   uint64
	// Events are curve event names; empty means purchases and sales.
	Events []string
	// Trader restricts results to logs whose indexed user matches.
	Trader *common.Address
}

// TradeLogs returns the raw logs matching q, in node order.
func (g *Gateway) TradeLogs(ctx context.Context, q LogQuery) ([]types.Log, error) {
	events := q.Events
	if len(events) == 0 {
		events = []string{EventTokensPurchased, EventTokensSold}
	}
	ids := make([]common.Hash, 0, len(events))
	for _, name := range events {
		ev, ok := curveABI.Events[name]
		if !ok {
			return nil, fmt.Errorf("chain: unknown curve event %q", name)
		}
		ids = append(ids, ev.ID)
	}

	topics := [][]common.Hash{ids}
	if q.Trader != nil {
		topics = append(topics, []common.Hash{common.BytesToHash(q.Trader.Bytes())})
	}

	filter := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: []common.Address{q.Curve},
		Topics:    topics,
	}

	start := time.Now()
	logs, err := g.backend.FilterLogs(ctx, filter)
	metrics.ObserveRPC("eth_getLogs", start, err)
	if err != nil {
		return nil, rpcError(fmt.Sprintf("logs %d-%d", q.FromBlock, q.ToBlock), err)
	}
	return logs, nil
}
