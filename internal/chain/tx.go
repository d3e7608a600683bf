package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/metrics"
)

// Signer is a short-lived signing identity. *wallet.Credential satisfies it.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// RevertError carries the decoded reason of a rejected call. It unwraps to
// domain.ErrTransactionReverted.
type RevertError struct {
	Method string
	Reason string
	TxHash common.Hash
}

func (e *RevertError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chain: %s reverted", e.Method)
	if e.TxHash != (common.Hash{}) {
		fmt.Fprintf(&b, " in %s", e.TxHash.Hex())
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

func (e *RevertError) Unwrap() error { return domain.ErrTransactionReverted }

// Buy submits buyTokens(minTokens) with ethIn attached and waits for the
// receipt.
func (g *Gateway) Buy(ctx context.Context, signer Signer, curve common.Address, ethIn, minTokens *big.Int) (*types.Receipt, error) {
	return g.transact(ctx, signer, curveABI, curve, ethIn, "buyTokens", minTokens)
}

// Sell submits sellTokens(tokenAmount, minEth) and waits for the receipt.
// The curve must already hold an allowance of at least tokenAmount.
func (g *Gateway) Sell(ctx context.Context, signer Signer, curve common.Address, tokenAmount, minEth *big.Int) (*types.Receipt, error) {
	return g.transact(ctx, signer, curveABI, curve, nil, "sellTokens", tokenAmount, minEth)
}

// Approve submits approve(spender, amount) on token and waits for the
// receipt.
func (g *Gateway) Approve(ctx context.Context, signer Signer, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return g.transact(ctx, signer, tokenABI, token, nil, "approve", spender, amount)
}

// transact estimates, signs, sends and confirms one contract call. A revert
// detected during estimation or a failed receipt status is returned as a
// *RevertError.
func (g *Gateway) transact(ctx context.Context, signer Signer, contract abi.ABI, to common.Address, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	from := signer.Address()

	start := time.Now()
	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	metrics.ObserveRPC("eth_estimateGas", start, err)
	if err != nil {
		if rerr := asRevert(method, err); rerr != nil {
			return nil, rerr
		}
		return nil, rpcError("estimate "+method, err)
	}
	gasLimit := gas * uint64(g.gasMultiplier) / 100

	start = time.Now()
	nonce, err := g.backend.PendingNonceAt(ctx, from)
	metrics.ObserveRPC("eth_getTransactionCount", start, err)
	if err != nil {
		return nil, rpcError("nonce", err)
	}

	start = time.Now()
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	metrics.ObserveRPC("eth_gasPrice", start, err)
	if err != nil {
		return nil, rpcError("gas price", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := signer.SignTx(tx)
	if err != nil {
		return nil, fmt.Errorf("chain: sign %s: %w", method, err)
	}

	start = time.Now()
	err = g.backend.SendTransaction(ctx, signed)
	metrics.ObserveRPC("eth_sendRawTransaction", start, err)
	if err != nil {
		if rerr := asRevert(method, err); rerr != nil {
			return nil, rerr
		}
		return nil, rpcError("send "+method, err)
	}

	g.logger.InfoContext(ctx, "chain: transaction sent",
		slog.String("method", method),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gasLimit),
	)

	receipt, err := g.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &RevertError{Method: method, TxHash: signed.Hash()}
	}
	return receipt, nil
}

// waitMined polls for the receipt of hash until it appears or ctx ends.
func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-timer.C:
		}

		start := time.Now()
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			metrics.ObserveRPC("eth_getTransactionReceipt", start, nil)
			timer.Reset(g.pollInterval)
			continue
		}
		metrics.ObserveRPC("eth_getTransactionReceipt", start, err)
		if err != nil {
			return nil, rpcError("receipt "+hash.Hex(), err)
		}
		return receipt, nil
	}
}

// asRevert recognises an execution revert reported by the node and decodes
// its Error(string) reason when present. It returns nil for any other error.
func asRevert(method string, err error) *RevertError {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(s); decErr == nil {
				reason, _ := abi.UnpackRevert(raw)
				return &RevertError{Method: method, Reason: reason}
			}
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "execution reverted") {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[strings.Index(msg, "execution reverted"):], "execution reverted"))
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
		return &RevertError{Method: method, Reason: reason}
	}
	return nil
}
