package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/quote"
	"github.com/alanyoungcy/curvebot/internal/units"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

var hundred = decimal.NewFromInt(100)

// MarketService answers read-only questions about curves and tokens: quotes,
// balances, allowances and curve progress.
type MarketService struct {
	chain  ChainReader
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(reader ChainReader, logger *slog.Logger) *MarketService {
	return &MarketService{chain: reader, logger: logger}
}

// BuyQuote prices ethAmount against the live reserves of curve.
func (s *MarketService) BuyQuote(ctx context.Context, curve, ethAmount string, slippageBps int) (domain.BuyQuote, error) {
	if err := quote.ValidateSlippage(slippageBps); err != nil {
		return domain.BuyQuote{}, fmt.Errorf("market_service: buy quote: %w", err)
	}
	ethIn, err := units.Ether.ToFixedPoint(ethAmount)
	if err != nil {
		return domain.BuyQuote{}, fmt.Errorf("market_service: buy quote: %w", err)
	}
	st, err := s.quotableState(ctx, curve)
	if err != nil {
		return domain.BuyQuote{}, fmt.Errorf("market_service: buy quote: %w", err)
	}

	q, err := quote.Buy(st, ethIn)
	if err != nil {
		return domain.BuyQuote{}, fmt.Errorf("market_service: buy quote: %w", err)
	}
	minOut, err := quote.MinOutput(q.Output, nil, slippageBps)
	if err != nil {
		return domain.BuyQuote{}, fmt.Errorf("market_service: buy quote: %w", err)
	}

	return domain.BuyQuote{
		Curve:         st.Address,
		EthAmount:     units.Ether.FromFixedPoint(ethIn),
		TokensOut:     units.Ether.FromFixedPoint(q.Output),
		PricePerToken: q.PricePerUnit,
		SlippageBps:   slippageBps,
		MinTokensOut:  units.Ether.FromFixedPoint(minOut),
	}, nil
}

// SellQuote prices tokenAmount against the live reserves of curve, net of
// the sell fee.
func (s *MarketService) SellQuote(ctx context.Context, curve, tokenAmount string, slippageBps int) (domain.SellQuote, error) {
	if err := quote.ValidateSlippage(slippageBps); err != nil {
		return domain.SellQuote{}, fmt.Errorf("market_service: sell quote: %w", err)
	}
	tokenIn, err := units.Ether.ToFixedPoint(tokenAmount)
	if err != nil {
		return domain.SellQuote{}, fmt.Errorf("market_service: sell quote: %w", err)
	}
	st, err := s.quotableState(ctx, curve)
	if err != nil {
		return domain.SellQuote{}, fmt.Errorf("market_service: sell quote: %w", err)
	}

	q, err := quote.Sell(st, tokenIn)
	if err != nil {
		return domain.SellQuote{}, fmt.Errorf("market_service: sell quote: %w", err)
	}
	minOut, err := quote.MinOutput(q.Output, nil, slippageBps)
	if err != nil {
		return domain.SellQuote{}, fmt.Errorf("market_service: sell quote: %w", err)
	}

	return domain.SellQuote{
		Curve:         st.Address,
		TokenAmount:   units.Ether.FromFixedPoint(tokenIn),
		EthOut:        units.Ether.FromFixedPoint(q.Gross),
		Fee:           units.Ether.FromFixedPoint(q.Fee),
		NetEthOut:     units.Ether.FromFixedPoint(q.Output),
		PricePerToken: q.PricePerUnit,
		SlippageBps:   slippageBps,
		MinEthOut:     units.Ether.FromFixedPoint(minOut),
	}, nil
}

// Balance returns holder's balance of token.
func (s *MarketService) Balance(ctx context.Context, token, holder string) (domain.Balance, error) {
	tokenAddr, err := wallet.ParseAddress(token)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("market_service: balance: token: %w", err)
	}
	holderAddr, err := wallet.ParseAddress(holder)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("market_service: balance: holder: %w", err)
	}
	bal, err := s.chain.BalanceOf(ctx, tokenAddr, holderAddr)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("market_service: balance: %w", err)
	}
	return domain.Balance{
		Address:      wallet.Lower(holderAddr),
		TokenAddress: wallet.Lower(tokenAddr),
		Balance:      units.Ether.FromFixedPoint(bal),
	}, nil
}

// Allowance returns how much spender may move of owner's token.
func (s *MarketService) Allowance(ctx context.Context, token, owner, spender string) (domain.Allowance, error) {
	tokenAddr, err := wallet.ParseAddress(token)
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("market_service: allowance: token: %w", err)
	}
	ownerAddr, err := wallet.ParseAddress(owner)
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("market_service: allowance: owner: %w", err)
	}
	spenderAddr, err := wallet.ParseAddress(spender)
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("market_service: allowance: spender: %w", err)
	}
	amt, err := s.chain.Allowance(ctx, tokenAddr, ownerAddr, spenderAddr)
	if err != nil {
		return domain.Allowance{}, fmt.Errorf("market_service: allowance: %w", err)
	}
	return domain.Allowance{
		Owner:        wallet.Lower(ownerAddr),
		Spender:      wallet.Lower(spenderAddr),
		TokenAddress: wallet.Lower(tokenAddr),
		Allowance:    units.Ether.FromFixedPoint(amt),
	}, nil
}

// TokenInfo reads ERC-20 metadata for token.
func (s *MarketService) TokenInfo(ctx context.Context, token string) (domain.TokenInfo, error) {
	addr, err := wallet.ParseAddress(token)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("market_service: token info: %w", err)
	}
	info, err := s.chain.TokenInfo(ctx, addr)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("market_service: token info: %w", err)
	}
	supply, ok := new(big.Int).SetString(info.TotalSupply, 10)
	if ok {
		info.TotalSupply = units.NewConverter(int32(info.Decimals)).FromFixedPoint(supply)
	}
	return info, nil
}

// CurveInfo reports reserves, settings and progress toward the bonding
// target. Progress is given against two baselines: the contract's
// totalETHCollected counter, and the real ETH held (ethReserve less virtual
// ETH). They diverge once sells have returned ETH.
func (s *MarketService) CurveInfo(ctx context.Context, curve string) (domain.CurveInfo, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.CurveInfo{}, fmt.Errorf("market_service: curve info: %w", err)
	}
	st, err := s.chain.CurveState(ctx, addr)
	if err != nil {
		return domain.CurveInfo{}, fmt.Errorf("market_service: curve info: %w", err)
	}
	token, err := s.chain.CurveToken(ctx, addr)
	if err != nil {
		return domain.CurveInfo{}, fmt.Errorf("market_service: curve info: %w", err)
	}

	collected := units.Ether.ToDecimal(st.TotalETHCollected)
	target := units.Ether.ToDecimal(st.Settings.BondingTarget)
	net := decimal.Max(units.Ether.ToDecimal(st.EthReserve).Sub(units.Ether.ToDecimal(st.Settings.VirtualEth)), decimal.Zero)

	return domain.CurveInfo{
		Address:               st.Address,
		TokenAddress:          wallet.Lower(token),
		Phase:                 st.Phase.String(),
		IsFinalized:           st.IsFinalized,
		EthReserve:            units.Ether.FromFixedPoint(st.EthReserve),
		TokenReserve:          units.Ether.FromFixedPoint(st.TokenReserve),
		TotalETHCollected:     collected.String(),
		VirtualEth:            units.Ether.FromFixedPoint(st.Settings.VirtualEth),
		BondingTarget:         target.String(),
		MinContribution:       units.Ether.FromFixedPoint(st.Settings.MinContribution),
		PoolFee:               st.Settings.PoolFee,
		SellFeeBps:            st.Settings.SellFeeBps,
		CurrentPrice:          quote.SpotPrice(st),
		Progress:              progress(collected, target),
		RemainingToTarget:     target.Sub(collected).String(),
		NetEthInCurve:         net.String(),
		LiveProgress:          progress(net, target),
		LiveRemainingToTarget: target.Sub(net).String(),
	}, nil
}

// Diagnostics cross-checks the curve's token reserve against the token
// contract's view of the curve's balance and total supply.
func (s *MarketService) Diagnostics(ctx context.Context, curve string) (domain.CurveDiagnostics, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.CurveDiagnostics{}, fmt.Errorf("market_service: diagnostics: %w", err)
	}
	st, err := s.chain.CurveState(ctx, addr)
	if err != nil {
		return domain.CurveDiagnostics{}, fmt.Errorf("market_service: diagnostics: %w", err)
	}
	token, err := s.chain.CurveToken(ctx, addr)
	if err != nil {
		return domain.CurveDiagnostics{}, fmt.Errorf("market_service: diagnostics: %w", err)
	}
	held, err := s.chain.BalanceOf(ctx, token, addr)
	if err != nil {
		return domain.CurveDiagnostics{}, fmt.Errorf("market_service: diagnostics: %w", err)
	}
	info, err := s.chain.TokenInfo(ctx, token)
	if err != nil {
		return domain.CurveDiagnostics{}, fmt.Errorf("market_service: diagnostics: %w", err)
	}
	supply, ok := new(big.Int).SetString(info.TotalSupply, 10)
	if !ok {
		return domain.CurveDiagnostics{}, fmt.Errorf("market_service: diagnostics: bad total supply %q", info.TotalSupply)
	}

	reserve := st.TokenReserve
	if reserve == nil {
		reserve = new(big.Int)
	}
	mismatch := reserve.Sign() == 0 && held.Sign() > 0
	if mismatch {
		s.logger.WarnContext(ctx, "market_service: token reserve is zero but curve holds tokens",
			slog.String("curve", addr.Hex()),
			slog.String("balance", held.String()),
		)
	}

	return domain.CurveDiagnostics{
		Address:            st.Address,
		TokenAddress:       wallet.Lower(token),
		Phase:              st.Phase.String(),
		TokenReserve:       units.Ether.FromFixedPoint(reserve),
		CurveTokenBalance:  units.Ether.FromFixedPoint(held),
		TotalSupply:        units.Ether.FromFixedPoint(supply),
		TokensOutsideCurve: units.Ether.FromFixedPoint(new(big.Int).Sub(supply, held)),
		ReserveMismatch:    mismatch,
		AllSupplyInCurve:   supply.Cmp(held) == 0,
	}, nil
}

// quotableState refuses quotes on finalized curves.
func (s *MarketService) quotableState(ctx context.Context, curve string) (domain.CurveState, error) {
	addr, err := wallet.ParseAddress(curve)
	if err != nil {
		return domain.CurveState{}, err
	}
	st, err := s.chain.CurveState(ctx, addr)
	if err != nil {
		return st, err
	}
	if !st.Tradable() {
		return st, fmt.Errorf("curve %s: %w", addr.Hex(), domain.ErrPhase)
	}
	return st, nil
}

// progress is part/target as a percentage capped at 100, two decimals.
func progress(part, target decimal.Decimal) string {
	if target.IsZero() {
		return "0"
	}
	pct := part.Div(target).Mul(hundred)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return pct.Truncate(2).String()
}
