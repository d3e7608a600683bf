package quote

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

func state(ethReserve, tokenReserve *big.Int, sellFeeBps uint32) domain.CurveState {
	return domain.CurveState{
		EthReserve:   ethReserve,
		TokenReserve: tokenReserve,
		Settings:     domain.CurveSettings{SellFeeBps: sellFeeBps},
	}
}

func TestBuyConcreteScenario(t *testing.T) {
	st := state(wei("10000000000000000000"), wei("1000000000000000000000000"), 100)

	q, err := Buy(st, wei("1000000000000000000"))
	require.NoError(t, err)

	// 1 * 1,000,000 / (10 + 1) tokens, truncated at the smallest unit.
	assert.Equal(t, "90909090909090909090909", q.Output.String())
	assert.Equal(t, q.Output.String(), q.Gross.String())
	assert.Zero(t, q.Fee.Sign())
	assert.Equal(t, "0.000011", q.PricePerUnit)
}

func TestSellConcreteScenario(t *testing.T) {
	st := state(wei("10000000000000000000"), wei("1000000000000000000000000"), 100)

	q, err := Sell(st, wei("100000000000000000000000"))
	require.NoError(t, err)

	assert.Equal(t, "909090909090909090", q.Gross.String())
	assert.Equal(t, "9090909090909090", q.Fee.String())
	assert.Equal(t, "900000000000000000", q.Output.String())
	assert.Equal(t, "0.000009090909090909", q.PricePerUnit)
}

func TestQuoteFormulaProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		ethReserve := big.NewInt(rng.Int63n(1e15) + 1)
		tokenReserve := big.NewInt(rng.Int63n(1e15) + 1)
		in := big.NewInt(rng.Int63n(1e15) + 1)
		fee := uint32(rng.Intn(1000))
		st := state(ethReserve, tokenReserve, fee)

		buy, err := Buy(st, in)
		require.NoError(t, err)
		want := new(big.Int).Mul(in, tokenReserve)
		want.Quo(want, new(big.Int).Add(ethReserve, in))
		assert.Equal(t, want.String(), buy.Output.String())
		assert.Negative(t, buy.Output.Cmp(tokenReserve), "tokensOut must stay below the reserve")

		sell, err := Sell(st, in)
		require.NoError(t, err)
		gross := new(big.Int).Mul(in, ethReserve)
		gross.Quo(gross, new(big.Int).Add(tokenReserve, in))
		wantFee := new(big.Int).Mul(gross, big.NewInt(int64(fee)))
		wantFee.Quo(wantFee, big.NewInt(BpsDenominator))
		assert.Equal(t, gross.String(), sell.Gross.String())
		assert.Equal(t, wantFee.String(), sell.Fee.String())
		assert.Equal(t, new(big.Int).Sub(gross, wantFee).String(), sell.Output.String())
		assert.LessOrEqual(t, sell.Output.Cmp(sell.Gross), 0)
	}
}

func TestBuyIsMonotonic(t *testing.T) {
	st := state(big.NewInt(1_000), big.NewInt(50_000), 0)

	prev := big.NewInt(-1)
	for in := int64(1); in <= 5_000; in++ {
		q, err := Buy(st, big.NewInt(in))
		require.NoError(t, err)
		// Non-strict: truncation can repeat a value across tiny increments.
		require.GreaterOrEqual(t, q.Output.Cmp(prev), 0, "ethIn=%d", in)
		prev = q.Output
	}
}

func TestSellIsMonotonic(t *testing.T) {
	st := state(big.NewInt(50_000), big.NewInt(1_000), 250)

	prev := big.NewInt(-1)
	for in := int64(1); in <= 5_000; in++ {
		q, err := Sell(st, big.NewInt(in))
		require.NoError(t, err)
		require.GreaterOrEqual(t, q.Gross.Cmp(prev), 0, "tokenIn=%d", in)
		prev = q.Gross
	}
}

func TestZeroInputRejected(t *testing.T) {
	st := state(big.NewInt(1), big.NewInt(1), 0)

	_, err := Buy(st, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInsufficientInput)
	_, err = Sell(st, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientInput)
}

func TestEmptyReservePrice(t *testing.T) {
	q, err := Buy(state(big.NewInt(0), big.NewInt(0), 0), big.NewInt(10))
	require.NoError(t, err)
	assert.Zero(t, q.Output.Sign())
	assert.Equal(t, "0", q.PricePerUnit)
}

func TestMinOutput(t *testing.T) {
	tests := []struct {
		name     string
		quoted   int64
		supplied *big.Int
		bps      int
		want     int64
	}{
		{"default slippage", 10_000, nil, DefaultSlippageBps, 9_750},
		{"zero slippage", 10_000, nil, 0, 10_000},
		{"max slippage", 10_000, nil, MaxSlippageBps, 5_000},
		{"supplied above floor wins", 10_000, big.NewInt(9_900), 250, 9_900},
		{"supplied below floor ignored", 10_000, big.NewInt(1), 250, 9_750},
		{"truncates", 999, nil, 250, 974},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MinOutput(big.NewInt(tt.quoted), tt.supplied, tt.bps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestSlippageRange(t *testing.T) {
	for _, bps := range []int{-1, 5_001, 10_000} {
		assert.ErrorIs(t, ValidateSlippage(bps), domain.ErrInvalidSlippage, "bps=%d", bps)
		_, err := MinOutput(big.NewInt(1), nil, bps)
		assert.ErrorIs(t, err, domain.ErrInvalidSlippage)
	}
	for _, bps := range []int{0, 1, 250, 5_000} {
		assert.NoError(t, ValidateSlippage(bps))
	}
}

func TestSlippageFromPercent(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", DefaultSlippageBps, false},
		{"2.5", 250, false},
		{" 1 ", 100, false},
		{"0.015", 1, false},
		{"50", 5_000, false},
		{"50.01", 0, true},
		{"-1", 0, true},
		{"-0.001", 0, true},
		{"-0", 0, false},
		{"0.005", 0, false},
		{"1e-20000000", 0, false},
		{"1e20000000", 0, true},
		{"5e1", 5_000, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := SlippageFromPercent(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, domain.ErrInvalidSlippage, "in=%q", tt.in)
			continue
		}
		require.NoError(t, err, "in=%q", tt.in)
		assert.Equal(t, tt.want, got, "in=%q", tt.in)
	}
}

func TestSpotPrice(t *testing.T) {
	st := state(wei("10000000000000000000"), wei("1000000000000000000000000"), 0)
	assert.Equal(t, "0.00001", SpotPrice(st))
	assert.Equal(t, "0", SpotPrice(state(big.NewInt(1), nil, 0)))
}
