package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/curvebot/internal/chain"
	"github.com/alanyoungcy/curvebot/internal/domain"
)

const testSecret = "abcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcfabcf"

var (
	testCurve  = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	testToken  = common.HexToAddress("0x000000000000000000000000000000000000beef")
	traderA    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	traderB    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func eth(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return new(big.Int).Mul(v, big.NewInt(1e18))
}

func bondingState() domain.CurveState {
	return domain.CurveState{
		Address:           "0x00000000000000000000000000000000000c0ffe",
		EthReserve:        eth("10"),
		TokenReserve:      eth("1000000"),
		TotalETHCollected: eth("3"),
		Settings: domain.CurveSettings{
			VirtualEth:      eth("7"),
			BondingTarget:   eth("20"),
			MinContribution: big.NewInt(1e15),
			SellFeeBps:      100,
		},
		Phase: domain.PhaseBonding,
	}
}

// fakeChain records every submission so tests can assert on ordering.
type fakeChain struct {
	mu sync.Mutex

	state      domain.CurveState
	stateReads int
	token      common.Address
	allowance  *big.Int
	balance    *big.Int
	info       domain.TokenInfo

	block          uint64
	timestamps     map[uint64]int64
	timestampCalls int
	logs           []types.Log
	lastQuery      chain.LogQuery

	submissions   []string
	receiptLogs   []*types.Log
	submitErr     error
	approveAmount *big.Int
	buyValue      *big.Int
	buyMin        *big.Int
	sellAmount    *big.Int
	sellMin       *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		state:      bondingState(),
		token:      testToken,
		allowance:  new(big.Int),
		balance:    new(big.Int),
		timestamps: make(map[uint64]int64),
	}
}

func (f *fakeChain) CurveState(context.Context, common.Address) (domain.CurveState, error) {
	f.stateReads++
	return f.state, nil
}

func (f *fakeChain) CurveToken(context.Context, common.Address) (common.Address, error) {
	return f.token, nil
}

func (f *fakeChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeChain) TokenInfo(context.Context, common.Address) (domain.TokenInfo, error) {
	return f.info, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.block, nil }

func (f *fakeChain) BlockTimestamp(_ context.Context, n uint64) (int64, error) {
	f.timestampCalls++
	return f.timestamps[n], nil
}

func (f *fakeChain) TradeLogs(_ context.Context, q chain.LogQuery) ([]types.Log, error) {
	f.lastQuery = q
	return f.logs, nil
}

func (f *fakeChain) submit(kind string) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, kind)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      common.BytesToHash([]byte(kind)),
		BlockNumber: big.NewInt(100),
		Logs:        f.receiptLogs,
	}, nil
}

func (f *fakeChain) Buy(_ context.Context, _ chain.Signer, _ common.Address, ethIn, minTokens *big.Int) (*types.Receipt, error) {
	f.buyValue, f.buyMin = ethIn, minTokens
	return f.submit("buy")
}

func (f *fakeChain) Sell(_ context.Context, _ chain.Signer, _ common.Address, tokenAmount, minEth *big.Int) (*types.Receipt, error) {
	f.sellAmount, f.sellMin = tokenAmount, minEth
	return f.submit("sell")
}

func (f *fakeChain) Approve(_ context.Context, _ chain.Signer, _, _ common.Address, amount *big.Int) (*types.Receipt, error) {
	f.approveAmount = amount
	return f.submit("approve")
}

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	streamed  []published
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{channel, payload})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, published{stream, payload})
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeAudit struct {
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, nil
}

func (l *fakeLimiter) Wait(context.Context, string) error { return nil }

type memTokenStore struct {
	byCurve map[string]domain.Token
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byCurve: make(map[string]domain.Token)}
}

func (m *memTokenStore) Upsert(_ context.Context, t domain.Token) error {
	m.byCurve[t.CurveAddress] = t
	return nil
}

func (m *memTokenStore) GetByCurve(_ context.Context, curve string) (domain.Token, error) {
	t, ok := m.byCurve[curve]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memTokenStore) GetByToken(_ context.Context, token string) (domain.Token, error) {
	for _, t := range m.byCurve {
		if t.TokenAddress == token {
			return t, nil
		}
	}
	return domain.Token{}, domain.ErrNotFound
}

func (m *memTokenStore) List(context.Context, domain.ListOpts) ([]domain.Token, error) {
	out := make([]domain.Token, 0, len(m.byCurve))
	for _, t := range m.byCurve {
		out = append(out, t)
	}
	return out, nil
}

func purchasedLog(user common.Address, ethIn, tokensOut *big.Int, block uint64, index uint) types.Log {
	data, err := chain.CurveABI().Events[chain.EventTokensPurchased].Inputs.NonIndexed().Pack(ethIn, tokensOut)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     testCurve,
		Topics:      []common.Hash{chain.EventID(chain.EventTokensPurchased), common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1_000 + uint64(index))),
	}
}

func soldLog(user common.Address, tokensIn, ethOut, fee *big.Int, block uint64, index uint) types.Log {
	data, err := chain.CurveABI().Events[chain.EventTokensSold].Inputs.NonIndexed().Pack(tokensIn, ethOut, fee)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     testCurve,
		Topics:      []common.Hash{chain.EventID(chain.EventTokensSold), common.BytesToHash(user.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1_000 + uint64(index))),
	}
}
