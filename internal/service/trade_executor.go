package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/curvebot/internal/chain"
	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/metrics"
	"github.com/alanyoungcy/curvebot/internal/quote"
	"github.com/alanyoungcy/curvebot/internal/units"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

// BuyRequest describes a buy. Amounts are decimal ETH/token strings. A nil
// SlippageBps selects quote.DefaultSlippageBps.
type BuyRequest struct {
	Curve       string
	EthAmount   string
	MinTokens   string
	SlippageBps *int
	Secret      string
}

// SellRequest describes a sell.
type SellRequest struct {
	Curve       string
	TokenAmount string
	MinEth      string
	SlippageBps *int
	Secret      string
}

// ApproveRequest grants spender an allowance on token.
type ApproveRequest struct {
	Token   string
	Spender string
	Amount  string
	Secret  string
}

// TradeExecutor runs buys, sells and approvals as sequential chains of RPC
// round-trips: phase check, quote, allowance, submit, confirm, decode.
// Nothing is retried and no per-curve locking is applied; the slippage bound
// in each transaction is the only protection against concurrent trades.
type TradeExecutor struct {
	chain    ChainGateway
	resolver *wallet.Resolver
	decoder  *chain.Decoder
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger

	rateLimit  int
	rateWindow time.Duration
}

// NewTradeExecutor creates a TradeExecutor. Event fan-out, auditing and
// rate limiting are attached with the With* methods.
func NewTradeExecutor(gw ChainGateway, resolver *wallet.Resolver, logger *slog.Logger) *TradeExecutor {
	return &TradeExecutor{
		chain:    gw,
		resolver: resolver,
		decoder:  chain.NewDecoder(),
		logger:   logger,
	}
}

// WithRateLimit caps operations per trader address to limit per window.
func (s *TradeExecutor) WithRateLimit(limiter domain.RateLimiter, limit int, window time.Duration) *TradeExecutor {
	s.limiter = limiter
	s.rateLimit = limit
	s.rateWindow = window
	return s
}

// WithEvents publishes confirmed operations on bus and records them in audit.
// Either may be nil.
func (s *TradeExecutor) WithEvents(bus domain.SignalBus, audit domain.AuditStore) *TradeExecutor {
	s.bus = bus
	s.audit = audit
	return s
}

// WithNotifier sends trade_executed / trade_failed alerts.
func (s *TradeExecutor) WithNotifier(n Notifier) *TradeExecutor {
	s.notifier = n
	return s
}

// Buy spends req.EthAmount on req.Curve. The returned token amount is taken
// from the TokensPurchased event, not the quote.
func (s *TradeExecutor) Buy(ctx context.Context, req BuyRequest) (res domain.BuyResult, err error) {
	opID := uuid.NewString()
	defer func() { s.finish(ctx, "buy", opID, req.Curve, err) }()

	cred, err := s.resolver.Resolve(req.Secret)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}
	defer cred.Destroy()

	curve, err := wallet.ParseAddress(req.Curve)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}
	bps, err := slippageOrDefault(req.SlippageBps)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}
	ethIn, err := units.Ether.ToFixedPoint(req.EthAmount)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: eth amount: %w", err)
	}
	minSupplied, err := optionalAmount(req.MinTokens)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: min tokens: %w", err)
	}
	if err := s.allow(ctx, cred.Address()); err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}

	st, err := s.tradableState(ctx, curve)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}
	if ethIn.Sign() == 0 || (st.Settings.MinContribution != nil && ethIn.Cmp(st.Settings.MinContribution) < 0) {
		return res, fmt.Errorf("trade_executor: buy: %s ETH below minimum contribution %s: %w",
			units.Ether.FromFixedPoint(ethIn), units.Ether.FromFixedPoint(st.Settings.MinContribution), domain.ErrInsufficientInput)
	}

	q, err := quote.Buy(st, ethIn)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}
	minTokens, err := quote.MinOutput(q.Output, minSupplied, bps)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}

	s.logger.InfoContext(ctx, "trade_executor: submitting buy",
		slog.String("operation_id", opID),
		slog.String("curve", curve.Hex()),
		slog.String("buyer", cred.Address().Hex()),
		slog.String("eth_in", units.Ether.FromFixedPoint(ethIn)),
		slog.String("quoted_tokens", units.Ether.FromFixedPoint(q.Output)),
		slog.String("min_tokens", units.Ether.FromFixedPoint(minTokens)),
	)

	receipt, err := s.chain.Buy(ctx, cred, curve, ethIn, minTokens)
	if err != nil {
		return res, fmt.Errorf("trade_executor: buy: %w", err)
	}

	ethSpent, tokensOut := ethIn, q.Output
	if ev, ok := s.purchased(ctx, receipt, curve); ok {
		ethSpent, tokensOut = ev.EthAmount, ev.TokensOut
	}

	res = domain.BuyResult{
		OperationID:    opID,
		TxHash:         receipt.TxHash.Hex(),
		BlockNumber:    blockOf(receipt),
		Buyer:          wallet.Lower(cred.Address()),
		EthSpent:       units.Ether.FromFixedPoint(ethSpent),
		TokensReceived: units.Ether.FromFixedPoint(tokensOut),
		MinTokens:      units.Ether.FromFixedPoint(minTokens),
	}

	s.emit(ctx, domain.TradeEvent{
		OperationID: opID,
		Kind:        domain.TradeEventBuy,
		Curve:       wallet.Lower(curve),
		Trader:      res.Buyer,
		TxHash:      res.TxHash,
		BlockNumber: res.BlockNumber,
		EthAmount:   res.EthSpent,
		TokenAmount: res.TokensReceived,
	})
	return res, nil
}

// Sell sells req.TokenAmount back to req.Curve. When the trader's allowance
// for the curve is short, an approval for exactly the sell amount is
// confirmed first.
func (s *TradeExecutor) Sell(ctx context.Context, req SellRequest) (res domain.SellResult, err error) {
	opID := uuid.NewString()
	defer func() { s.finish(ctx, "sell", opID, req.Curve, err) }()

	cred, err := s.resolver.Resolve(req.Secret)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}
	defer cred.Destroy()

	curve, err := wallet.ParseAddress(req.Curve)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}
	bps, err := slippageOrDefault(req.SlippageBps)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}
	tokenIn, err := units.Ether.ToFixedPoint(req.TokenAmount)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: token amount: %w", err)
	}
	minSupplied, err := optionalAmount(req.MinEth)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: min eth: %w", err)
	}
	if err := s.allow(ctx, cred.Address()); err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}

	st, err := s.tradableState(ctx, curve)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}

	q, err := quote.Sell(st, tokenIn)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}
	minEth, err := quote.MinOutput(q.Output, minSupplied, bps)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}

	token, err := s.chain.CurveToken(ctx, curve)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}
	trader := cred.Address()
	allowance, err := s.chain.Allowance(ctx, token, trader, curve)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}

	var approvalTx string
	if allowance.Cmp(tokenIn) < 0 {
		s.logger.InfoContext(ctx, "trade_executor: approving curve before sell",
			slog.String("operation_id", opID),
			slog.String("token", token.Hex()),
			slog.String("current_allowance", units.Ether.FromFixedPoint(allowance)),
			slog.String("amount", units.Ether.FromFixedPoint(tokenIn)),
		)
		approval, err := s.chain.Approve(ctx, cred, token, curve, tokenIn)
		if err != nil {
			return res, fmt.Errorf("trade_executor: sell: approve: %w", err)
		}
		approvalTx = approval.TxHash.Hex()
	}

	s.logger.InfoContext(ctx, "trade_executor: submitting sell",
		slog.String("operation_id", opID),
		slog.String("curve", curve.Hex()),
		slog.String("seller", trader.Hex()),
		slog.String("tokens_in", units.Ether.FromFixedPoint(tokenIn)),
		slog.String("quoted_eth", units.Ether.FromFixedPoint(q.Output)),
		slog.String("min_eth", units.Ether.FromFixedPoint(minEth)),
	)

	receipt, err := s.chain.Sell(ctx, cred, curve, tokenIn, minEth)
	if err != nil {
		return res, fmt.Errorf("trade_executor: sell: %w", err)
	}

	tokensSold, ethOut, fee := tokenIn, q.Output, q.Fee
	if ev, ok := s.sold(ctx, receipt, curve); ok {
		tokensSold, ethOut, fee = ev.TokensIn, ev.EthOut, ev.Fee
	}

	res = domain.SellResult{
		OperationID:    opID,
		TxHash:         receipt.TxHash.Hex(),
		BlockNumber:    blockOf(receipt),
		Seller:         wallet.Lower(trader),
		TokensSold:     units.Ether.FromFixedPoint(tokensSold),
		EthReceived:    units.Ether.FromFixedPoint(ethOut),
		Fee:            units.Ether.FromFixedPoint(fee),
		MinEth:         units.Ether.FromFixedPoint(minEth),
		ApprovalTxHash: approvalTx,
	}

	s.emit(ctx, domain.TradeEvent{
		OperationID: opID,
		Kind:        domain.TradeEventSell,
		Curve:       wallet.Lower(curve),
		Token:       wallet.Lower(token),
		Trader:      res.Seller,
		TxHash:      res.TxHash,
		BlockNumber: res.BlockNumber,
		EthAmount:   res.EthReceived,
		TokenAmount: res.TokensSold,
		FeeAmount:   res.Fee,
	})
	return res, nil
}

// Approve grants req.Spender an allowance of req.Amount on req.Token,
// independent of any trade.
func (s *TradeExecutor) Approve(ctx context.Context, req ApproveRequest) (res domain.ApproveResult, err error) {
	opID := uuid.NewString()
	defer func() { s.finish(ctx, "approve", opID, req.Token, err) }()

	cred, err := s.resolver.Resolve(req.Secret)
	if err != nil {
		return res, fmt.Errorf("trade_executor: approve: %w", err)
	}
	defer cred.Destroy()

	token, err := wallet.ParseAddress(req.Token)
	if err != nil {
		return res, fmt.Errorf("trade_executor: approve: token: %w", err)
	}
	spender, err := wallet.ParseAddress(req.Spender)
	if err != nil {
		return res, fmt.Errorf("trade_executor: approve: spender: %w", err)
	}
	amount, err := units.Ether.ToFixedPoint(req.Amount)
	if err != nil {
		return res, fmt.Errorf("trade_executor: approve: amount: %w", err)
	}
	if err := s.allow(ctx, cred.Address()); err != nil {
		return res, fmt.Errorf("trade_executor: approve: %w", err)
	}

	receipt, err := s.chain.Approve(ctx, cred, token, spender, amount)
	if err != nil {
		return res, fmt.Errorf("trade_executor: approve: %w", err)
	}

	res = domain.ApproveResult{
		OperationID:    opID,
		TxHash:         receipt.TxHash.Hex(),
		BlockNumber:    blockOf(receipt),
		Owner:          wallet.Lower(cred.Address()),
		TokenAddress:   wallet.Lower(token),
		Spender:        wallet.Lower(spender),
		ApprovedAmount: units.Ether.FromFixedPoint(amount),
	}

	s.emit(ctx, domain.TradeEvent{
		OperationID: opID,
		Kind:        domain.TradeEventApprove,
		Token:       res.TokenAddress,
		Trader:      res.Owner,
		TxHash:      res.TxHash,
		BlockNumber: res.BlockNumber,
		TokenAmount: res.ApprovedAmount,
	})
	return res, nil
}

// tradableState reads the curve and fails with ErrPhase once it is
// finalized, before anything is signed.
func (s *TradeExecutor) tradableState(ctx context.Context, curve common.Address) (domain.CurveState, error) {
	st, err := s.chain.CurveState(ctx, curve)
	if err != nil {
		return st, err
	}
	if !st.Tradable() {
		return st, fmt.Errorf("curve %s in phase %s: %w", curve.Hex(), st.Phase, domain.ErrPhase)
	}
	return st, nil
}

func (s *TradeExecutor) allow(ctx context.Context, trader common.Address) error {
	if s.limiter == nil || s.rateLimit <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "trades:"+wallet.Lower(trader), s.rateLimit, s.rateWindow)
	if err != nil {
		// Limiter outages do not block trading.
		s.logger.WarnContext(ctx, "trade_executor: rate limiter failed",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *TradeExecutor) purchased(ctx context.Context, receipt *types.Receipt, curve common.Address) (chain.Purchased, bool) {
	events, err := s.decoder.ReceiptEvents(receipt, curve)
	if err != nil {
		s.logger.WarnContext(ctx, "trade_executor: decode receipt failed",
			slog.String("tx_hash", receipt.TxHash.Hex()),
			slog.String("error", err.Error()),
		)
	}
	for _, ev := range events {
		if p, ok := ev.(chain.Purchased); ok {
			return p, true
		}
	}
	s.logger.WarnContext(ctx, "trade_executor: no TokensPurchased event, using quote",
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return chain.Purchased{}, false
}

func (s *TradeExecutor) sold(ctx context.Context, receipt *types.Receipt, curve common.Address) (chain.Sold, bool) {
	events, err := s.decoder.ReceiptEvents(receipt, curve)
	if err != nil {
		s.logger.WarnContext(ctx, "trade_executor: decode receipt failed",
			slog.String("tx_hash", receipt.TxHash.Hex()),
			slog.String("error", err.Error()),
		)
	}
	for _, ev := range events {
		if sd, ok := ev.(chain.Sold); ok {
			return sd, true
		}
	}
	s.logger.WarnContext(ctx, "trade_executor: no TokensSold event, using quote",
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return chain.Sold{}, false
}

// emit fans a confirmed operation out to the bus, the audit log and the
// notifier. Every step is best-effort.
func (s *TradeExecutor) emit(ctx context.Context, evt domain.TradeEvent) {
	evt.At = time.Now().UTC()

	s.logger.InfoContext(ctx, "trade_executor: operation confirmed",
		slog.String("operation_id", evt.OperationID),
		slog.String("kind", string(evt.Kind)),
		slog.String("tx_hash", evt.TxHash),
		slog.Uint64("block", evt.BlockNumber),
	)

	if s.bus != nil {
		payload, err := json.Marshal(evt)
		if err == nil {
			if pubErr := s.bus.Publish(ctx, domain.ChannelTrades, payload); pubErr != nil {
				s.logger.WarnContext(ctx, "trade_executor: publish event failed",
					slog.String("operation_id", evt.OperationID),
					slog.String("error", pubErr.Error()),
				)
			}
			if streamErr := s.bus.StreamAppend(ctx, domain.StreamTrades, payload); streamErr != nil {
				s.logger.WarnContext(ctx, "trade_executor: stream append failed",
					slog.String("operation_id", evt.OperationID),
					slog.String("error", streamErr.Error()),
				)
			}
		}
	}

	if s.audit != nil {
		if auditErr := s.audit.Log(ctx, "trade_"+string(evt.Kind), map[string]any{
			"operation_id": evt.OperationID,
			"curve":        evt.Curve,
			"token":        evt.Token,
			"trader":       evt.Trader,
			"tx_hash":      evt.TxHash,
			"block":        evt.BlockNumber,
			"eth_amount":   evt.EthAmount,
			"token_amount": evt.TokenAmount,
			"fee_amount":   evt.FeeAmount,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "trade_executor: audit log failed",
				slog.String("operation_id", evt.OperationID),
				slog.String("error", auditErr.Error()),
			)
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("%s confirmed", strings.ToUpper(string(evt.Kind)))
		msg := fmt.Sprintf("trader %s\ntx %s\neth %s\ntokens %s", evt.Trader, evt.TxHash, evt.EthAmount, evt.TokenAmount)
		if err := s.notifier.Notify(ctx, EventTradeExecuted, title, msg); err != nil {
			s.logger.WarnContext(ctx, "trade_executor: notify failed", slog.String("error", err.Error()))
		}
	}
}

// finish records the outcome of every operation.
func (s *TradeExecutor) finish(ctx context.Context, op, opID, target string, err error) {
	metrics.RecordTrade(op, err)
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "trade_executor: operation failed",
		slog.String("operation_id", opID),
		slog.String("operation", op),
		slog.String("target", target),
		slog.String("error", err.Error()),
	)
	if s.notifier != nil {
		msg := fmt.Sprintf("%s on %s: %v", op, target, err)
		if nErr := s.notifier.Notify(ctx, EventTradeFailed, "Trade failed", msg); nErr != nil {
			s.logger.WarnContext(ctx, "trade_executor: notify failed", slog.String("error", nErr.Error()))
		}
	}
}

func slippageOrDefault(bps *int) (int, error) {
	if bps == nil {
		return quote.DefaultSlippageBps, nil
	}
	if err := quote.ValidateSlippage(*bps); err != nil {
		return 0, err
	}
	return *bps, nil
}

func optionalAmount(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return units.Ether.ToFixedPoint(s)
}

func blockOf(r *types.Receipt) uint64 {
	if r == nil || r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}
