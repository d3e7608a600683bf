package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/service"
	"github.com/alanyoungcy/curvebot/internal/units"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

// Request floors for the HTTP surface. The curve's own minContribution is
// enforced separately by the executor.
var (
	minBuyEth      = decimal.RequireFromString("0.001")
	minTokenAmount = decimal.RequireFromString("0.000001")
)

// Trader executes signed operations.
type Trader interface {
	Buy(ctx context.Context, req service.BuyRequest) (domain.BuyResult, error)
	Sell(ctx context.Context, req service.SellRequest) (domain.SellResult, error)
	Approve(ctx context.Context, req service.ApproveRequest) (domain.ApproveResult, error)
}

// Market serves read-only curve and token views.
type Market interface {
	BuyQuote(ctx context.Context, curve, ethAmount string, slippageBps int) (domain.BuyQuote, error)
	SellQuote(ctx context.Context, curve, tokenAmount string, slippageBps int) (domain.SellQuote, error)
	Balance(ctx context.Context, token, holder string) (domain.Balance, error)
	Allowance(ctx context.Context, token, owner, spender string) (domain.Allowance, error)
	TokenInfo(ctx context.Context, token string) (domain.TokenInfo, error)
	CurveInfo(ctx context.Context, curve string) (domain.CurveInfo, error)
	Diagnostics(ctx context.Context, curve string) (domain.CurveDiagnostics, error)
}

// CurveRegistry gates routes on registered curves and tokens.
type CurveRegistry interface {
	EnsureCurve(ctx context.Context, curve string) (domain.Token, error)
	Get(ctx context.Context, address string) (domain.Token, error)
}

// SecretLoader supplies the operator secret when a request carries none.
type SecretLoader func() (string, error)

// TradingHandler serves /api/trading.
type TradingHandler struct {
	trader   Trader
	market   Market
	registry CurveRegistry
	secrets  SecretLoader
	logger   *slog.Logger
}

// NewTradingHandler creates a TradingHandler. Without a registry every
// well-formed address is accepted.
func NewTradingHandler(trader Trader, market Market, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{trader: trader, market: market, logger: logger}
}

// WithRegistry requires curves and tokens to be registered.
func (h *TradingHandler) WithRegistry(reg CurveRegistry) *TradingHandler {
	h.registry = reg
	return h
}

// WithSecretLoader sets the fallback for requests without privateKey.
func (h *TradingHandler) WithSecretLoader(fn SecretLoader) *TradingHandler {
	h.secrets = fn
	return h
}

type buyBody struct {
	EthAmount   json.Number `json:"ethAmount"`
	MinTokens   json.Number `json:"minTokens"`
	SlippageBps *int        `json:"slippageBps"`
	Slippage    json.Number `json:"slippage"`
	PrivateKey  string      `json:"privateKey"`
}

type sellBody struct {
	TokenAmount json.Number `json:"tokenAmount"`
	MinEth      json.Number `json:"minEth"`
	SlippageBps *int        `json:"slippageBps"`
	Slippage    json.Number `json:"slippage"`
	PrivateKey  string      `json:"privateKey"`
}

type approveBody struct {
	Spender        string      `json:"spender"`
	SpenderAddress string      `json:"spenderAddress"`
	Amount         json.Number `json:"amount"`
	PrivateKey     string      `json:"privateKey"`
}

// Buy spends ETH on a curve.
// POST /api/trading/buy/{address}
func (h *TradingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var body buyBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := atLeast(body.EthAmount.String(), minBuyEth, "ethAmount"); err != nil {
		writeServiceError(w, r, h.logger, "buy", err)
		return
	}
	bps, err := parseSlippage(body.SlippageBps, body.Slippage.String())
	if err != nil {
		writeServiceError(w, r, h.logger, "buy", err)
		return
	}
	curve := r.PathValue("address")
	tok, ok := h.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	secret, ok := h.secret(w, body.PrivateKey)
	if !ok {
		return
	}

	res, err := h.trader.Buy(r.Context(), service.BuyRequest{
		Curve:       curve,
		EthAmount:   body.EthAmount.String(),
		MinTokens:   body.MinTokens.String(),
		SlippageBps: &bps,
		Secret:      secret,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "buy", err)
		return
	}
	writeOK(w, "Token purchase successful", map[string]any{
		"transaction": res,
		"slippageBps": bps,
		"token":       tok,
	})
}

// Sell sells tokens back to a curve, approving first when needed.
// POST /api/trading/sell/{address}
func (h *TradingHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var body sellBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := atLeast(body.TokenAmount.String(), minTokenAmount, "tokenAmount"); err != nil {
		writeServiceError(w, r, h.logger, "sell", err)
		return
	}
	bps, err := parseSlippage(body.SlippageBps, body.Slippage.String())
	if err != nil {
		writeServiceError(w, r, h.logger, "sell", err)
		return
	}
	curve := r.PathValue("address")
	tok, ok := h.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	secret, ok := h.secret(w, body.PrivateKey)
	if !ok {
		return
	}

	res, err := h.trader.Sell(r.Context(), service.SellRequest{
		Curve:       curve,
		TokenAmount: body.TokenAmount.String(),
		MinEth:      body.MinEth.String(),
		SlippageBps: &bps,
		Secret:      secret,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "sell", err)
		return
	}
	writeOK(w, "Token sale successful", map[string]any{
		"transaction": res,
		"slippageBps": bps,
		"token":       tok,
	})
}

// Approve grants a spender an allowance.
// POST /api/trading/approve/{tokenAddress}
func (h *TradingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body approveBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender := body.Spender
	if spender == "" {
		spender = body.SpenderAddress
	}
	if _, err := wallet.ParseAddress(spender); err != nil {
		writeServiceError(w, r, h.logger, "approve", fmt.Errorf("spender: %w", err))
		return
	}
	if err := atLeast(body.Amount.String(), minTokenAmount, "amount"); err != nil {
		writeServiceError(w, r, h.logger, "approve", err)
		return
	}
	token := r.PathValue("tokenAddress")
	tok, ok := h.ensureToken(w, r, token)
	if !ok {
		return
	}
	secret, ok := h.secret(w, body.PrivateKey)
	if !ok {
		return
	}

	res, err := h.trader.Approve(r.Context(), service.ApproveRequest{
		Token:   token,
		Spender: spender,
		Amount:  body.Amount.String(),
		Secret:  secret,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "approve", err)
		return
	}
	writeOK(w, "Token approval successful", map[string]any{"transaction": res, "token": tok})
}

// BuyQuote prices a buy without submitting it.
// GET /api/trading/quote/buy/{address}?ethAmount=0.1&slippage=2.5
func (h *TradingHandler) BuyQuote(w http.ResponseWriter, r *http.Request) {
	amount := r.URL.Query().Get("ethAmount")
	if err := atLeast(amount, minBuyEth, "ethAmount"); err != nil {
		writeServiceError(w, r, h.logger, "buy quote", err)
		return
	}
	bps, err := slippageQuery(r)
	if err != nil {
		writeServiceError(w, r, h.logger, "buy quote", err)
		return
	}
	curve := r.PathValue("address")
	tok, ok := h.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	q, err := h.market.BuyQuote(r.Context(), curve, amount, bps)
	if err != nil {
		writeServiceError(w, r, h.logger, "buy quote", err)
		return
	}
	writeOK(w, "", map[string]any{"quote": q, "token": tok})
}

// SellQuote prices a sell, net of the sell fee.
// GET /api/trading/quote/sell/{address}?tokenAmount=1000
func (h *TradingHandler) SellQuote(w http.ResponseWriter, r *http.Request) {
	amount := r.URL.Query().Get("tokenAmount")
	if err := atLeast(amount, minTokenAmount, "tokenAmount"); err != nil {
		writeServiceError(w, r, h.logger, "sell quote", err)
		return
	}
	bps, err := slippageQuery(r)
	if err != nil {
		writeServiceError(w, r, h.logger, "sell quote", err)
		return
	}
	curve := r.PathValue("address")
	tok, ok := h.ensureCurve(w, r, curve)
	if !ok {
		return
	}
	q, err := h.market.SellQuote(r.Context(), curve, amount, bps)
	if err != nil {
		writeServiceError(w, r, h.logger, "sell quote", err)
		return
	}
	writeOK(w, "", map[string]any{"quote": q, "token": tok})
}

// Balance returns a holder's token balance.
// GET /api/trading/balance/{tokenAddress}/{userAddress}
func (h *TradingHandler) Balance(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("tokenAddress")
	tok, ok := h.ensureToken(w, r, token)
	if !ok {
		return
	}
	bal, err := h.market.Balance(r.Context(), token, r.PathValue("userAddress"))
	if err != nil {
		writeServiceError(w, r, h.logger, "balance", err)
		return
	}
	writeOK(w, "", map[string]any{"balance": bal, "token": tok})
}

// Allowance returns owner's allowance for spender.
// GET /api/trading/allowance/{tokenAddress}/{owner}/{spender}
func (h *TradingHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("tokenAddress")
	tok, ok := h.ensureToken(w, r, token)
	if !ok {
		return
	}
	al, err := h.market.Allowance(r.Context(), token, r.PathValue("owner"), r.PathValue("spender"))
	if err != nil {
		writeServiceError(w, r, h.logger, "allowance", err)
		return
	}
	writeOK(w, "", map[string]any{"allowance": al, "token": tok})
}

// TokenInfo returns ERC-20 metadata read from chain.
// GET /api/trading/token/{tokenAddress}
func (h *TradingHandler) TokenInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.market.TokenInfo(r.Context(), r.PathValue("tokenAddress"))
	if err != nil {
		writeServiceError(w, r, h.logger, "token info", err)
		return
	}
	writeOK(w, "", info)
}

// CurveInfo returns reserves, settings and progress.
// GET /api/trading/curve/{address}
func (h *TradingHandler) CurveInfo(w http.ResponseWriter, r *http.Request) {
	curve := r.PathValue("address")
	if _, ok := h.ensureCurve(w, r, curve); !ok {
		return
	}
	info, err := h.market.CurveInfo(r.Context(), curve)
	if err != nil {
		writeServiceError(w, r, h.logger, "curve info", err)
		return
	}
	writeOK(w, "", info)
}

// Diagnostics cross-checks reserves against token balances.
// GET /api/trading/curve/{address}/diagnostics
func (h *TradingHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	curve := r.PathValue("address")
	if _, ok := h.ensureCurve(w, r, curve); !ok {
		return
	}
	d, err := h.market.Diagnostics(r.Context(), curve)
	if err != nil {
		writeServiceError(w, r, h.logger, "diagnostics", err)
		return
	}
	writeOK(w, "", d)
}

// ensureCurve validates the address and, with a registry, that the curve is
// registered. On failure the response is already written.
func (h *TradingHandler) ensureCurve(w http.ResponseWriter, r *http.Request, curve string) (*domain.Token, bool) {
	if _, err := wallet.ParseAddress(curve); err != nil {
		writeServiceError(w, r, h.logger, "curve lookup", err)
		return nil, false
	}
	if h.registry == nil {
		return nil, true
	}
	tok, err := h.registry.EnsureCurve(r.Context(), curve)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Bonding curve not found")
			return nil, false
		}
		writeServiceError(w, r, h.logger, "curve lookup", err)
		return nil, false
	}
	return &tok, true
}

func (h *TradingHandler) ensureToken(w http.ResponseWriter, r *http.Request, token string) (*domain.Token, bool) {
	if _, err := wallet.ParseAddress(token); err != nil {
		writeServiceError(w, r, h.logger, "token lookup", err)
		return nil, false
	}
	if h.registry == nil {
		return nil, true
	}
	tok, err := h.registry.Get(r.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token not found")
			return nil, false
		}
		writeServiceError(w, r, h.logger, "token lookup", err)
		return nil, false
	}
	return &tok, true
}

// secret picks the request key, else the configured operator key.
func (h *TradingHandler) secret(w http.ResponseWriter, fromRequest string) (string, bool) {
	if fromRequest != "" {
		return fromRequest, true
	}
	if h.secrets != nil {
		s, err := h.secrets()
		if err == nil {
			return s, true
		}
		if !errors.Is(err, wallet.ErrNoSecret) {
			h.logger.Error("handler: loading operator key failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "operator key unavailable")
			return "", false
		}
	}
	writeError(w, http.StatusBadRequest, "privateKey is required")
	return "", false
}

// atLeast parses a decimal amount and checks it against floor.
func atLeast(value string, floor decimal.Decimal, field string) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", field, domain.ErrPrecision)
	}
	d, err := units.Ether.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d.LessThan(floor) {
		return fmt.Errorf("%s must be at least %s: %w", field, floor.String(), domain.ErrInsufficientInput)
	}
	return nil
}
