package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/metrics"
)

// CurveState reads reserves, phase and settings from curve. Every call goes
// to the endpoint; nothing is cached.
func (g *Gateway) CurveState(ctx context.Context, curve common.Address) (domain.CurveState, error) {
	var st domain.CurveState
	st.Address = strings.ToLower(curve.Hex())

	phaseOut, err := g.call(ctx, curveABI, curve, "currentPhase")
	if err != nil {
		return st, err
	}
	phase, ok := phaseOut[0].(uint8)
	if !ok {
		return st, fmt.Errorf("chain: currentPhase: unexpected output type %T", phaseOut[0])
	}
	st.Phase = domain.Phase(phase)

	if st.EthReserve, err = g.callBig(ctx, curveABI, curve, "ethReserve"); err != nil {
		return st, err
	}
	if st.TokenReserve, err = g.callBig(ctx, curveABI, curve, "tokenReserve"); err != nil {
		return st, err
	}
	if st.TotalETHCollected, err = g.callBig(ctx, curveABI, curve, "totalETHCollected"); err != nil {
		return st, err
	}

	finOut, err := g.call(ctx, curveABI, curve, "isFinalized")
	if err != nil {
		return st, err
	}
	fin, ok := finOut[0].(bool)
	if !ok {
		return st, fmt.Errorf("chain: isFinalized: unexpected output type %T", finOut[0])
	}
	st.IsFinalized = fin

	settingsOut, err := g.call(ctx, curveABI, curve, "getBondingCurveSettings")
	if err != nil {
		return st, err
	}
	raw := *abi.ConvertType(settingsOut[0], new(settingsTuple)).(*settingsTuple)
	st.Settings = domain.CurveSettings{
		VirtualEth:       raw.VirtualEth,
		BondingTarget:    raw.BondingTarget,
		MinContribution:  raw.MinContribution,
		PoolFee:          uint32(raw.PoolFee.Uint64()),
		SellFeeBps:       uint32(raw.SellFee.Uint64()),
		UniswapV3Factory: strings.ToLower(raw.UniswapV3Factory.Hex()),
		PositionManager:  strings.ToLower(raw.PositionManager.Hex()),
		WETH:             strings.ToLower(raw.Weth.Hex()),
		FeeTo:            strings.ToLower(raw.FeeTo.Hex()),
	}
	return st, nil
}

// CurveToken returns the ERC-20 token traded on curve.
func (g *Gateway) CurveToken(ctx context.Context, curve common.Address) (common.Address, error) {
	out, err := g.call(ctx, curveABI, curve, "token")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: token: unexpected output type %T", out[0])
	}
	return addr, nil
}

// BalanceOf returns the token balance of account in smallest units.
func (g *Gateway) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return g.callBig(ctx, tokenABI, token, "balanceOf", account)
}

// Allowance returns how much spender may move on behalf of owner.
func (g *Gateway) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return g.callBig(ctx, tokenABI, token, "allowance", owner, spender)
}

// TokenInfo reads ERC-20 metadata.
func (g *Gateway) TokenInfo(ctx context.Context, token common.Address) (domain.TokenInfo, error) {
	info := domain.TokenInfo{Address: strings.ToLower(token.Hex())}

	nameOut, err := g.call(ctx, tokenABI, token, "name")
	if err != nil {
		return info, err
	}
	info.Name, _ = nameOut[0].(string)

	symOut, err := g.call(ctx, tokenABI, token, "symbol")
	if err != nil {
		return info, err
	}
	info.Symbol, _ = symOut[0].(string)

	decOut, err := g.call(ctx, tokenABI, token, "decimals")
	if err != nil {
		return info, err
	}
	info.Decimals, _ = decOut[0].(uint8)

	supply, err := g.callBig(ctx, tokenABI, token, "totalSupply")
	if err != nil {
		return info, err
	}
	info.TotalSupply = supply.String()
	return info, nil
}

// BlockNumber returns the latest block height.
func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	n, err := g.backend.BlockNumber(ctx)
	metrics.ObserveRPC("eth_blockNumber", start, err)
	if err != nil {
		return 0, rpcError("block number", err)
	}
	return n, nil
}

// BlockTimestamp returns the header time of block n in unix seconds.
func (g *Gateway) BlockTimestamp(ctx context.Context, n uint64) (int64, error) {
	start := time.Now()
	header, err := g.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	metrics.ObserveRPC("eth_getBlockByNumber", start, err)
	if err != nil {
		return 0, rpcError(fmt.Sprintf("header %d", n), err)
	}
	return int64(header.Time), nil
}
