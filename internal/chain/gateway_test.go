package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/curvebot/internal/domain"
	"github.com/alanyoungcy/curvebot/internal/wallet"
)

const testKey = "abcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcf"

var (
	testCurve = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	testToken = common.HexToAddress("0x000000000000000000000000000000000000beef")
)

type receiptStep struct {
	receipt *types.Receipt
	err     error
}

// fakeBackend answers eth_call by selector and replays queued receipts.
type fakeBackend struct {
	mu sync.Mutex

	outputs     map[[4]byte][]byte
	callErr     error
	estimate    uint64
	estimateErr error
	nonce       uint64
	gasPrice    *big.Int
	sendErr     error
	sent        []*types.Transaction
	receipts    []receiptStep
	receiptHits int
	logs        []types.Log
	lastFilter  ethereum.FilterQuery
	headerTimes map[uint64]uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs:     make(map[[4]byte][]byte),
		estimate:    100_000,
		gasPrice:    big.NewInt(1_000_000_000),
		headerTimes: make(map[uint64]uint64),
	}
}

func (f *fakeBackend) respond(t *testing.T, contract abi.ABI, method string, vals ...any) {
	t.Helper()
	m, ok := contract.Methods[method]
	require.True(t, ok, method)
	out, err := m.Outputs.Pack(vals...)
	require.NoError(t, err)
	var sel [4]byte
	copy(sel[:], m.ID)
	f.outputs[sel] = out
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(11124), nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return 20_000, nil }

func (f *fakeBackend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	ts, ok := f.headerTimes[n.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Header{Number: n, Time: ts}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	out, ok := f.outputs[sel]
	if !ok {
		return nil, errors.New("no output for selector")
	}
	return out, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptHits++
	if len(f.receipts) == 0 {
		return nil, ethereum.NotFound
	}
	step := f.receipts[0]
	f.receipts = f.receipts[1:]
	return step.receipt, step.err
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastFilter = q
	return f.logs, nil
}

// revertDataError mimics the JSON-RPC error a node returns for a reverted
// eth_estimateGas.
type revertDataError struct {
	data string
}

func (e revertDataError) Error() string          { return "execution reverted" }
func (e revertDataError) ErrorData() interface{} { return e.data }

func newTestGateway(t *testing.T, backend Backend) *Gateway {
	t.Helper()
	g, err := NewGateway(context.Background(), backend, Config{
		ChainID:             11124,
		ReceiptPollInterval: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return g
}

func testSigner(t *testing.T) *wallet.Credential {
	t.Helper()
	cred, err := wallet.NewResolver(big.NewInt(11124)).Resolve(testKey)
	require.NoError(t, err)
	return cred
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestNewGatewayQueriesChainID(t *testing.T) {
	g, err := NewGateway(context.Background(), newFakeBackend(), Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, int64(11124), g.ChainID().Int64())
}

func TestCurveStateReadsAllViews(t *testing.T) {
	fb := newFakeBackend()
	fb.respond(t, curveABI, "currentPhase", uint8(0))
	fb.respond(t, curveABI, "ethReserve", eth(10))
	fb.respond(t, curveABI, "tokenReserve", eth(1_000_000))
	fb.respond(t, curveABI, "totalETHCollected", eth(3))
	fb.respond(t, curveABI, "isFinalized", false)
	fb.respond(t, curveABI, "getBondingCurveSettings", settingsTuple{
		VirtualEth:       eth(7),
		BondingTarget:    eth(30),
		MinContribution:  big.NewInt(1e15),
		PoolFee:          big.NewInt(3000),
		SellFee:          big.NewInt(100),
		UniswapV3Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		PositionManager:  common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88"),
		Weth:             common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		FeeTo:            common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
	})

	st, err := newTestGateway(t, fb).CurveState(context.Background(), testCurve)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000c0ffe", st.Address)
	assert.Equal(t, domain.PhaseBonding, st.Phase)
	assert.False(t, st.IsFinalized)
	assert.True(t, st.Tradable())
	assert.Equal(t, 0, eth(10).Cmp(st.EthReserve))
	assert.Equal(t, 0, eth(1_000_000).Cmp(st.TokenReserve))
	assert.Equal(t, 0, eth(3).Cmp(st.TotalETHCollected))
	assert.Equal(t, 0, eth(7).Cmp(st.Settings.VirtualEth))
	assert.Equal(t, uint32(100), st.Settings.SellFeeBps)
	assert.Equal(t, uint32(3000), st.Settings.PoolFee)
	assert.Equal(t, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", st.Settings.WETH)
}

func TestReadsWrapRPCFailure(t *testing.T) {
	fb := newFakeBackend()
	cause := errors.New("connection refused")
	fb.callErr = cause

	_, err := newTestGateway(t, fb).BalanceOf(context.Background(), testToken, testCurve)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRPCFailure)
	assert.ErrorIs(t, err, cause)
}

func TestTokenInfo(t *testing.T) {
	fb := newFakeBackend()
	fb.respond(t, tokenABI, "name", "Curve Token")
	fb.respond(t, tokenABI, "symbol", "CRV")
	fb.respond(t, tokenABI, "decimals", uint8(18))
	fb.respond(t, tokenABI, "totalSupply", eth(1_000_000_000))

	info, err := newTestGateway(t, fb).TokenInfo(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "Curve Token", info.Name)
	assert.Equal(t, "CRV", info.Symbol)
	assert.Equal(t, uint8(18), info.Decimals)
	assert.Equal(t, eth(1_000_000_000).String(), info.TotalSupply)
}

func TestBuyPollsUntilReceipt(t *testing.T) {
	fb := newFakeBackend()
	fb.nonce = 7
	fb.receipts = []receiptStep{
		{err: ethereum.NotFound},
		{err: ethereum.NotFound},
		{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42)}},
	}
	signer := testSigner(t)

	receipt, err := newTestGateway(t, fb).Buy(context.Background(), signer, testCurve, eth(1), big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), receipt.BlockNumber.Uint64())
	assert.Equal(t, 3, fb.receiptHits)

	require.Len(t, fb.sent, 1)
	tx := fb.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, 0, eth(1).Cmp(tx.Value()))
	assert.Equal(t, testCurve, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11124)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	args, err := curveABI.Methods["buyTokens"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(5), args[0].(*big.Int).Int64())
}

func TestFailedReceiptIsRevert(t *testing.T) {
	fb := newFakeBackend()
	fb.receipts = []receiptStep{{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}}

	_, err := newTestGateway(t, fb).Sell(context.Background(), testSigner(t), testCurve, eth(100), eth(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransactionReverted)

	var rerr *RevertError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "sellTokens", rerr.Method)
	assert.NotEqual(t, common.Hash{}, rerr.TxHash)
}

func TestEstimateRevertDecodesReason(t *testing.T) {
	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	payload, err := abi.Arguments{{Type: stringTy}}.Pack("Slippage exceeded")
	require.NoError(t, err)
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)

	fb := newFakeBackend()
	fb.estimateErr = revertDataError{data: hexutil.Encode(data)}

	_, err = newTestGateway(t, fb).Buy(context.Background(), testSigner(t), testCurve, eth(1), eth(1000))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransactionReverted)
	assert.NotErrorIs(t, err, domain.ErrRPCFailure)

	var rerr *RevertError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Slippage exceeded", rerr.Reason)
	assert.Empty(t, fb.sent)
}

func TestEstimatePlainRevertMessage(t *testing.T) {
	fb := newFakeBackend()
	fb.estimateErr = errors.New("execution reverted: Curve finalized")

	_, err := newTestGateway(t, fb).Approve(context.Background(), testSigner(t), testToken, testCurve, eth(1))
	var rerr *RevertError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Curve finalized", rerr.Reason)
}

func TestSendFailureIsRPCFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.sendErr = errors.New("nonce too low")

	_, err := newTestGateway(t, fb).Approve(context.Background(), testSigner(t), testToken, testCurve, eth(1))
	assert.ErrorIs(t, err, domain.ErrRPCFailure)
}

func TestWaitMinedStopsOnContextCancel(t *testing.T) {
	fb := newFakeBackend()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestGateway(t, fb).Buy(ctx, testSigner(t), testCurve, eth(1), big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, fb.sent, 1)
}

func TestTradeLogsBuildsTopicFilter(t *testing.T) {
	fb := newFakeBackend()
	g := newTestGateway(t, fb)
	trader := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

	_, err := g.TradeLogs(context.Background(), LogQuery{
		Curve:     testCurve,
		FromBlock: 10_000,
		ToBlock:   20_000,
		Trader:    &trader,
	})
	require.NoError(t, err)

	q := fb.lastFilter
	assert.Equal(t, []common.Address{testCurve}, q.Addresses)
	assert.Equal(t, uint64(10_000), q.FromBlock.Uint64())
	assert.Equal(t, uint64(20_000), q.ToBlock.Uint64())
	require.Len(t, q.Topics, 2)
	assert.ElementsMatch(t, []common.Hash{EventID(EventTokensPurchased), EventID(EventTokensSold)}, q.Topics[0])
	assert.Equal(t, common.BytesToHash(trader.Bytes()), q.Topics[1][0])

	_, err = g.TradeLogs(context.Background(), LogQuery{Curve: testCurve, Events: []string{"Bogus"}})
	assert.Error(t, err)
}

func TestBlockTimestamp(t *testing.T) {
	fb := newFakeBackend()
	fb.headerTimes[100] = 1_700_000_000
	g := newTestGateway(t, fb)

	ts, err := g.BlockTimestamp(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), ts)

	_, err = g.BlockTimestamp(context.Background(), 101)
	assert.ErrorIs(t, err, domain.ErrRPCFailure)
}
