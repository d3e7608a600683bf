package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// CurveABIJSON is the bonding curve contract surface this package binds to.
const CurveABIJSON = `[
	{"type":"function","name":"buyTokens","stateMutability":"payable",
	 "inputs":[{"name":"minTokens","type":"uint256"}],
	 "outputs":[{"name":"tokensToReceive","type":"uint256"}]},
	{"type":"function","name":"sellTokens","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenAmount","type":"uint256"},{"name":"minETH","type":"uint256"}],
	 "outputs":[{"name":"ethToReceive","type":"uint256"},{"name":"fee","type":"uint256"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"currentPhase","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"ethReserve","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tokenReserve","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalETHCollected","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isFinalized","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getBondingCurveSettings","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"virtualEth","type":"uint256"},
		{"name":"bondingTarget","type":"uint256"},
		{"name":"minContribution","type":"uint256"},
		{"name":"poolFee","type":"uint24"},
		{"name":"sellFee","type":"uint24"},
		{"name":"uniswapV3Factory","type":"address"},
		{"name":"positionManager","type":"address"},
		{"name":"weth","type":"address"},
		{"name":"feeTo","type":"address"}]}]},
	{"type":"event","name":"TokensPurchased","anonymous":false,"inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"ethAmount","type":"uint256","indexed":false},
		{"name":"tokensOut","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokensSold","anonymous":false,"inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"tokensIn","type":"uint256","indexed":false},
		{"name":"ethOut","type":"uint256","indexed":false},
		{"name":"fee","type":"uint256","indexed":false}]},
	{"type":"event","name":"CurveFinalized","anonymous":false,"inputs":[
		{"name":"pool","type":"address","indexed":true},
		{"name":"lpTokenId","type":"uint256","indexed":false}]}
]`

// TokenABIJSON is the ERC-20 subset used for balances and approvals.
const TokenABIJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Approval","anonymous":false,"inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"spender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

// Event names on the curve contract.
const (
	EventTokensPurchased = "TokensPurchased"
	EventTokensSold      = "TokensSold"
	EventCurveFinalized  = "CurveFinalized"
)

// settingsTuple mirrors getBondingCurveSettings() so abi.ConvertType can
// copy the anonymous decoded struct into it.
type settingsTuple struct {
	VirtualEth       *big.Int
	BondingTarget    *big.Int
	MinContribution  *big.Int
	PoolFee          *big.Int
	SellFee          *big.Int
	UniswapV3Factory common.Address
	PositionManager  common.Address
	Weth             common.Address
	FeeTo            common.Address
}

var (
	curveABI = mustParseABI("curve", CurveABIJSON)
	tokenABI = mustParseABI("token", TokenABIJSON)
)

// CurveABI returns the parsed bonding curve ABI.
func CurveABI() abi.ABI { return curveABI }

// TokenABI returns the parsed ERC-20 ABI.
func TokenABI() abi.ABI { return tokenABI }

// EventID returns the topic0 hash of a curve event.
func EventID(name string) common.Hash {
	return curveABI.Events[name].ID
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s abi: %v", name, err))
	}
	return parsed
}
