// Package quote reproduces the bonding curve's constant-product pricing so
// callers can plan trades and derive slippage bounds. Results use the same
// truncating integer arithmetic as the contract. They are advisory: the
// chain may have moved by the time a transaction lands.
package quote

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/units"
)

const (
	// BpsDenominator is 100% in basis points.
	BpsDenominator = 10_000
	// DefaultSlippageBps applies when the caller supplies no tolerance.
	DefaultSlippageBps = 250
	// MaxSlippageBps is the widest accepted tolerance (50%).
	MaxSlippageBps = 5_000
)

var bpsDenom = big.NewInt(BpsDenominator)

// Quote is a computed trade outcome in smallest units. For buys Gross equals
// Output and Fee is zero.
type Quote struct {
	Input  *big.Int
	Gross  *big.Int
	Fee    *big.Int
	Output *big.Int
	// PricePerUnit is ETH per token as a decimal string, for display.
	PricePerUnit string
}

// Buy quotes ethIn wei against st:
//
//	tokensOut = ethIn * tokenReserve / (ethReserve + ethIn)
func Buy(st domain.CurveState, ethIn *big.Int) (Quote, error) {
	if ethIn == nil || ethIn.Sign() <= 0 {
		return Quote{}, fmt.Errorf("quote: buy: %w", domain.ErrInsufficientInput)
	}
	ethReserve, tokenReserve := reserve(st.EthReserve), reserve(st.TokenReserve)

	num := new(big.Int).Mul(ethIn, tokenReserve)
	den := new(big.Int).Add(ethReserve, ethIn)
	out := num.Quo(num, den)

	return Quote{
		Input:        new(big.Int).Set(ethIn),
		Gross:        out,
		Fee:          new(big.Int),
		Output:       new(big.Int).Set(out),
		PricePerUnit: ratio(ethIn, out),
	}, nil
}

// Sell quotes tokenIn against st, charging the curve's sell fee:
//
//	gross = tokenIn * ethReserve / (tokenReserve + tokenIn)
//	fee   = gross * sellFeeBps / 10000
//	net   = gross - fee
func Sell(st domain.CurveState, tokenIn *big.Int) (Quote, error) {
	if tokenIn == nil || tokenIn.Sign() <= 0 {
		return Quote{}, fmt.Errorf("quote: sell: %w", domain.ErrInsufficientInput)
	}
	ethReserve, tokenReserve := reserve(st.EthReserve), reserve(st.TokenReserve)

	num := new(big.Int).Mul(tokenIn, ethReserve)
	den := new(big.Int).Add(tokenReserve, tokenIn)
	gross := num.Quo(num, den)

	fee := new(big.Int).Mul(gross, big.NewInt(int64(st.Settings.SellFeeBps)))
	fee.Quo(fee, bpsDenom)
	net := new(big.Int).Sub(gross, fee)

	return Quote{
		Input:        new(big.Int).Set(tokenIn),
		Gross:        gross,
		Fee:          fee,
		Output:       net,
		PricePerUnit: ratio(gross, tokenIn),
	}, nil
}

// MinOutput is the execution floor for a quoted output:
// max(supplied, quoted * (10000 - bps) / 10000). A nil supplied minimum is
// treated as zero.
func MinOutput(quoted, supplied *big.Int, bps int) (*big.Int, error) {
	if err := ValidateSlippage(bps); err != nil {
		return nil, err
	}
	floor := new(big.Int).Mul(quoted, big.NewInt(int64(BpsDenominator-bps)))
	floor.Quo(floor, bpsDenom)
	if supplied != nil && supplied.Cmp(floor) > 0 {
		return new(big.Int).Set(supplied), nil
	}
	return floor, nil
}

// ValidateSlippage accepts 0..MaxSlippageBps inclusive.
func ValidateSlippage(bps int) error {
	if bps < 0 || bps > MaxSlippageBps {
		return fmt.Errorf("quote: %d bps: %w", bps, domain.ErrInvalidSlippage)
	}
	return nil
}

// SlippageFromPercent converts a percentage string such as "2.5" into basis
// points. Fractions of a basis point are dropped. An empty string yields
// DefaultSlippageBps.
func SlippageFromPercent(pct string) (int, error) {
	pct = strings.TrimSpace(pct)
	if pct == "" {
		return DefaultSlippageBps, nil
	}
	d, err := decimal.NewFromString(pct)
	if err != nil {
		return 0, fmt.Errorf("quote: slippage %q: %w", pct, domain.ErrInvalidSlippage)
	}
	// Sign first: "-0.001" would otherwise truncate to a valid 0 bps.
	if d.Sign() < 0 {
		return 0, fmt.Errorf("quote: slippage %s%%: %w", pct, domain.ErrInvalidSlippage)
	}
	if d.IsZero() {
		return 0, nil
	}
	// Leading digit position bounds the exponent before any rescaling.
	switch lead := len(d.Coefficient().Text(10)) + int(d.Exponent()); {
	case lead > 3:
		return 0, fmt.Errorf("quote: slippage %s%%: %w", pct, domain.ErrInvalidSlippage)
	case lead < -1:
		return 0, nil
	}
	bps := d.Mul(decimal.NewFromInt(100)).Truncate(0)
	if bps.GreaterThan(decimal.NewFromInt(MaxSlippageBps)) {
		return 0, fmt.Errorf("quote: slippage %s%%: %w", pct, domain.ErrInvalidSlippage)
	}
	return int(bps.IntPart()), nil
}

// SpotPrice is the marginal price of one token in ETH, ethReserve over
// tokenReserve.
func SpotPrice(st domain.CurveState) string {
	return ratio(reserve(st.EthReserve), reserve(st.TokenReserve))
}

func reserve(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// ratio renders num/den to 18 decimal places, truncated. Both operands share
// the 18-decimal scale so the raw integers divide directly.
func ratio(num, den *big.Int) string {
	if den == nil || den.Sign() == 0 {
		return "0"
	}
	q := decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), units.EtherDecimals+2)
	return q.Truncate(units.EtherDecimals).String()
}
