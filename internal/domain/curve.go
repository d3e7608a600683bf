package domain

import "math/big"

// Phase mirrors the curve contract's currentPhase() enum.
type Phase uint8

const (
	PhaseBonding   Phase = 0
	PhaseFinalized Phase = 1
)

func (p Phase) String() string {
	switch p {
	case PhaseBonding:
		return "bonding"
	case PhaseFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// CurveSettings is the decoded getBondingCurveSettings() tuple. Fees are in
// basis points; addresses are lower-case hex.
type CurveSettings struct {
	VirtualEth       *big.Int
	BondingTarget    *big.Int
	MinContribution  *big.Int
	PoolFee          uint32
	SellFeeBps       uint32
	UniswapV3Factory string
	PositionManager  string
	WETH             string
	FeeTo            string
}

// CurveState is a point-in-time read of a bonding curve contract. It is read
// fresh for every operation and never cached.
type CurveState struct {
	Address           string
	EthReserve        *big.Int
	TokenReserve      *big.Int
	TotalETHCollected *big.Int
	Settings          CurveSettings
	Phase             Phase
	IsFinalized       bool
}

// Tradable reports whether buys and sells are still accepted by the curve.
// Finalization is one-way.
func (s CurveState) Tradable() bool {
	return s.Phase == PhaseBonding && !s.IsFinalized
}

// CurveInfo is the presentation view of a curve. Two baselines are reported
// for the distance to the bonding target: Progress/RemainingToTarget use the
// contract's totalETHCollected counter, LiveProgress/LiveRemainingToTarget
// use the real ETH held (ethReserve minus virtual ETH).
type CurveInfo struct {
	Address               string `json:"address"`
	TokenAddress          string `json:"tokenAddress"`
	Phase                 string `json:"phase"`
	IsFinalized           bool   `json:"isFinalized"`
	EthReserve            string `json:"ethReserve"`
	TokenReserve          string `json:"tokenReserve"`
	TotalETHCollected     string `json:"totalETHCollected"`
	VirtualEth            string `json:"virtualEth"`
	BondingTarget         string `json:"bondingTarget"`
	MinContribution       string `json:"minContribution"`
	PoolFee               uint32 `json:"poolFee"`
	SellFeeBps            uint32 `json:"sellFeeBps"`
	CurrentPrice          string `json:"currentPrice"`
	Progress              string `json:"progress"`
	RemainingToTarget     string `json:"remainingToTarget"`
	NetEthInCurve         string `json:"netEthInCurve"`
	LiveProgress          string `json:"liveProgress"`
	LiveRemainingToTarget string `json:"liveRemainingToTarget"`
}

// CurveDiagnostics cross-checks the curve's bookkeeping against the token
// contract's balances.
type CurveDiagnostics struct {
	Address            string `json:"address"`
	TokenAddress       string `json:"tokenAddress"`
	Phase              string `json:"phase"`
	TokenReserve       string `json:"tokenReserve"`
	CurveTokenBalance  string `json:"curveTokenBalance"`
	TotalSupply        string `json:"totalSupply"`
	TokensOutsideCurve string `json:"tokensOutsideCurve"`
	ReserveMismatch    bool   `json:"reserveMismatch"`
	AllSupplyInCurve   bool   `json:"allSupplyInCurve"`
}
