// Package chain is the only place the service talks to the JSON-RPC
// endpoint. It binds the bonding curve and ERC-20 contracts, submits signed
// transactions and waits for their receipts, and decodes curve event logs.
// It applies no timeouts and no retries: the caller's context is the only
// deadline, and provider errors are returned wrapped with
// domain.ErrRPCFailure.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/metrics"
)

const (
	defaultGasMultiplierPct = 120
	defaultPollInterval     = 2 * time.Second
)

// Backend is the subset of *ethclient.Client the gateway uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Config holds gateway parameters.
type Config struct {
	RPCURL string
	// ChainID is queried from the endpoint when zero.
	ChainID int64
	// GasMultiplierPct scales gas estimates; 120 means +20%.
	GasMultiplierPct int
	// ReceiptPollInterval is the delay between receipt lookups.
	ReceiptPollInterval time.Duration
}

// Gateway binds the curve and token contracts over one RPC connection. It is
// safe for concurrent use; it holds no per-operation state.
type Gateway struct {
	backend       Backend
	chainID       *big.Int
	gasMultiplier int64
	pollInterval  time.Duration
	decoder       *Decoder
	closeFn       func()
	logger        *slog.Logger
}

// Dial connects to cfg.RPCURL and returns a Gateway over it.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w: %w", cfg.RPCURL, domain.ErrRPCFailure, err)
	}
	g, err := NewGateway(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.closeFn = client.Close
	return g, nil
}

// NewGateway wraps an existing backend.
func NewGateway(ctx context.Context, backend Backend, cfg Config, logger *slog.Logger) (*Gateway, error) {
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		start := time.Now()
		id, err := backend.ChainID(ctx)
		metrics.ObserveRPC("eth_chainId", start, err)
		if err != nil {
			return nil, rpcError("chain id", err)
		}
		chainID = id
	}

	mult := int64(cfg.GasMultiplierPct)
	if mult <= 0 {
		mult = defaultGasMultiplierPct
	}
	poll := cfg.ReceiptPollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Gateway{
		backend:       backend,
		chainID:       chainID,
		gasMultiplier: mult,
		pollInterval:  poll,
		decoder:       NewDecoder(),
		logger:        logger.With(slog.String("component", "chain")),
	}, nil
}

// ChainID returns the chain the gateway submits to.
func (g *Gateway) ChainID() *big.Int {
	return new(big.Int).Set(g.chainID)
}

// Decoder returns the gateway's log decoder.
func (g *Gateway) Decoder() *Decoder {
	return g.decoder
}

// Close releases the RPC connection when the gateway owns it.
func (g *Gateway) Close() {
	if g.closeFn != nil {
		g.closeFn()
	}
}

// call packs method for contract, runs eth_call against to and unpacks the
// outputs.
func (g *Gateway) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	start := time.Now()
	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	metrics.ObserveRPC("eth_call", start, err)
	if err != nil {
		return nil, rpcError("call "+method, err)
	}

	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s from %s: %w", method, to.Hex(), err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("chain: %s from %s returned no values", method, to.Hex())
	}
	return vals, nil
}

func (g *Gateway) callBig(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	vals, err := g.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected output type %T", method, vals[0])
	}
	return v, nil
}

// rpcError tags a provider error with domain.ErrRPCFailure while keeping the
// original error in the chain.
func rpcError(op string, err error) error {
	return fmt.Errorf("chain: %s: %w: %w", op, domain.ErrRPCFailure, err)
}
