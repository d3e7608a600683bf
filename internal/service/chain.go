package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/curvebot/internal/chain"
	"github.com/alanyoungcy/curvebot/internal/domain"
)

// ChainReader is the read side of chain.Gateway.
type ChainReader interface {
	CurveState(ctx context.Context, curve common.Address) (domain.CurveState, error)
	CurveToken(ctx context.Context, curve common.Address) (common.Address, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TokenInfo(ctx context.Context, token common.Address) (domain.TokenInfo, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, n uint64) (int64, error)
	TradeLogs(ctx context.Context, q chain.LogQuery) ([]types.Log, error)
}

// ChainWriter submits signed transactions and waits for their receipts.
type ChainWriter interface {
	Buy(ctx context.Context, signer chain.Signer, curve common.Address, ethIn, minTokens *big.Int) (*types.Receipt, error)
	Sell(ctx context.Context, signer chain.Signer, curve common.Address, tokenAmount, minEth *big.Int) (*types.Receipt, error)
	Approve(ctx context.Context, signer chain.Signer, token, spender common.Address, amount *big.Int) (*types.Receipt, error)
}

// ChainGateway is everything TradeExecutor needs from the chain.
type ChainGateway interface {
	ChainReader
	ChainWriter
}

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventTradeExecuted = "trade_executed"
	EventTradeFailed   = "trade_failed"
)

var (
	_ ChainGateway = (*chain.Gateway)(nil)
)
