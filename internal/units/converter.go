// Package units converts between human decimal strings and fixed-point
// integers. It is the single place where decimal precision is cut: every
// value is truncated toward zero at the converter's decimal places before it
// becomes an integer.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

// EtherDecimals is the precision of ETH (wei) and of curve tokens.
const EtherDecimals = 18

// Converter converts amounts at a fixed number of decimal places.
type Converter struct {
	decimals int32
}

// NewConverter returns a Converter for the given number of decimals.
func NewConverter(decimals int32) Converter {
	return Converter{decimals: decimals}
}

// maxFixedPoint is the largest uint256, the bound of every contract amount.
var maxFixedPoint = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// maxIntegerDigits is the digit count of maxFixedPoint.
const maxIntegerDigits = 78

// Ether is the 18-decimal converter used for ETH and curve tokens.
var Ether = NewConverter(EtherDecimals)

// Decimals returns the converter's precision.
func (c Converter) Decimals() int32 {
	return c.decimals
}

// Parse reads a decimal string and truncates it to the converter's
// precision. Negative, malformed and non-finite values fail with
// domain.ErrPrecision.
func (c Converter) Parse(value string) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, fmt.Errorf("units: empty amount: %w", domain.ErrPrecision)
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, fmt.Errorf("units: non-finite amount %q: %w", s, domain.ErrPrecision)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("units: parse %q: %w", s, domain.ErrPrecision)
	}
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("units: negative amount %q: %w", s, domain.ErrPrecision)
	}
	if tooLarge(d) {
		return decimal.Zero, fmt.Errorf("units: amount %q exceeds uint256: %w", s, domain.ErrPrecision)
	}
	if !d.IsZero() && integerDigits(d) <= -int64(c.decimals) {
		// Below the smallest unit; rescaling a tiny exponent is as costly as a huge one.
		return decimal.Zero, nil
	}
	return c.Truncate(d), nil
}

// Truncate cuts d toward zero at the converter's decimal places.
func (c Converter) Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(c.decimals)
}

// ToFixedPoint converts a decimal string to its smallest-unit integer.
func (c Converter) ToFixedPoint(value string) (*big.Int, error) {
	d, err := c.Parse(value)
	if err != nil {
		return nil, err
	}
	return c.DecimalToFixedPoint(d)
}

// DecimalToFixedPoint converts an already parsed decimal, truncating first.
func (c Converter) DecimalToFixedPoint(d decimal.Decimal) (*big.Int, error) {
	if d.Sign() < 0 {
		return nil, fmt.Errorf("units: negative amount %s: %w", d.String(), domain.ErrPrecision)
	}
	if tooLarge(d) {
		return nil, fmt.Errorf("units: amount exceeds uint256: %w", domain.ErrPrecision)
	}
	v := c.Truncate(d).Shift(c.decimals).BigInt()
	if v.Cmp(maxFixedPoint) > 0 {
		return nil, fmt.Errorf("units: amount exceeds uint256: %w", domain.ErrPrecision)
	}
	return v, nil
}

// tooLarge reports whether d has more integer digits than a uint256, judged
// from the coefficient and exponent without expanding the value.
func tooLarge(d decimal.Decimal) bool {
	if d.IsZero() {
		return false
	}
	return integerDigits(d) > maxIntegerDigits
}

// integerDigits is the position of d's leading digit relative to the
// decimal point: 3 for 123.4, 0 for 0.5, -2 for 0.005.
func integerDigits(d decimal.Decimal) int64 {
	return int64(len(d.Coefficient().Text(10))) + int64(d.Exponent())
}

// FromFixedPoint renders a smallest-unit integer as a minimal decimal string.
// A nil value renders as "0".
func (c Converter) FromFixedPoint(v *big.Int) string {
	return c.ToDecimal(v).String()
}

// ToDecimal lifts a smallest-unit integer to a decimal value.
func (c Converter) ToDecimal(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -c.decimals)
}
