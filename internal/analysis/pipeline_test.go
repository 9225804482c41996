package analysis

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapScope/internal/dex"
	"swapScope/internal/model"
	"swapScope/internal/scheduler"
)

const (
	testWallet      = "0x1111111111111111111111111111111111111111"
	v2Router        = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	universalRouter = "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
)

var (
	tokenA   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenC   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	pairAB   = common.HexToAddress("0x5555555555555555555555555555555555555555")
	poolBC   = common.HexToAddress("0x6666666666666666666666666666666666666666")
	receiver = common.HexToAddress(testWallet)

	symbolSelector = []byte{0x95, 0xd8, 0x9b, 0x41}
)

type fetcherFunc func(ctx context.Context, wallet string) ([]model.RawTransaction, error)

func (f fetcherFunc) FetchHistory(ctx context.Context, wallet string) ([]model.RawTransaction, error) {
	return f(ctx, wallet)
}

func staticHistory(txs ...model.RawTransaction) fetcherFunc {
	return func(context.Context, string) ([]model.RawTransaction, error) {
		return txs, nil
	}
}

type captureExport struct {
	mu      sync.Mutex
	reports []model.Report
}

func (c *captureExport) Export(_ context.Context, report model.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
	return nil
}

func (c *captureExport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

type captureProgress struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (c *captureProgress) Notify(event model.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureProgress) snapshot() []model.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ProgressEvent(nil), c.events...)
}

func (c *captureProgress) kinds() []model.ProgressKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ProgressKind, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Kind)
	}
	return out
}

// chainStub answers symbol(), getPair and getPool. When fail is set every
// call errors. onCall runs before each answer.
type chainStub struct {
	mu      sync.Mutex
	symbols map[common.Address]string
	fail    bool
	calls   int
	onCall  func(n int)
}

func (c *chainStub) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *chainStub) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if c.onCall != nil {
		c.onCall(n)
	}
	if c.fail {
		return nil, errors.New("execution reverted")
	}

	v2, _ := dex.V2FactoryABI()
	v3, _ := dex.V3FactoryABI()
	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, symbolSelector):
		symbol, ok := c.symbols[*msg.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return abi.Arguments{{Type: mustType("string")}}.Pack(symbol)
	case bytes.Equal(selector, v2.Methods["getPair"].ID):
		return v2.Methods["getPair"].Outputs.Pack(pairAB)
	case bytes.Equal(selector, v3.Methods["getPool"].ID):
		args, err := v3.Methods["getPool"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		if args[2].(*big.Int).Uint64() == 3000 {
			return v3.Methods["getPool"].Outputs.Pack(poolBC)
		}
		return v3.Methods["getPool"].Outputs.Pack(common.Address{})
	}
	return nil, errors.New("unexpected call")
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func v2SwapTx(t *testing.T, hash string, ts uint64, path ...common.Address) model.RawTransaction {
	t.Helper()
	parsed, err := dex.V2RouterABI()
	require.NoError(t, err)
	data, err := parsed.Pack("swapExactTokensForTokens", big.NewInt(1000), big.NewInt(1), path, receiver, big.NewInt(1))
	require.NoError(t, err)
	return model.RawTransaction{Hash: hash, To: v2Router, Input: hexutil.Encode(data), Timestamp: ts}
}

func universalTx(t *testing.T, hash string, ts uint64) model.RawTransaction {
	t.Helper()
	v2Input, err := abi.Arguments{
		{Type: mustType("address")}, {Type: mustType("uint256")}, {Type: mustType("uint256")},
		{Type: mustType("address[]")}, {Type: mustType("bool")},
	}.Pack(receiver, big.NewInt(1000), big.NewInt(1), []common.Address{tokenA, tokenB}, true)
	require.NoError(t, err)

	path, err := dex.EncodePackedV3Path([]common.Address{tokenB, tokenC}, []uint32{3000})
	require.NoError(t, err)
	v3Input, err := abi.Arguments{
		{Type: mustType("address")}, {Type: mustType("uint256")}, {Type: mustType("uint256")},
		{Type: mustType("bytes")}, {Type: mustType("bool")},
	}.Pack(receiver, big.NewInt(1000), big.NewInt(1), path, true)
	require.NoError(t, err)

	parsed, err := dex.UniversalRouterABI()
	require.NoError(t, err)
	data, err := parsed.Pack("execute", []byte{0x08, 0xFF, 0x00}, [][]byte{v2Input, {0x00}, v3Input}, big.NewInt(1))
	require.NoError(t, err)
	return model.RawTransaction{Hash: hash, To: universalRouter, Input: hexutil.Encode(data), Timestamp: ts}
}

type fixture struct {
	chain    *chainStub
	export   *captureExport
	progress *captureProgress
	pipeline *Pipeline
}

func newFixture(t *testing.T, fetcher HistoryFetcher, cfg Config) *fixture {
	t.Helper()
	if cfg.Scheduler.Window == 0 {
		cfg.Scheduler = scheduler.Config{BatchSize: 5, Window: 10 * time.Millisecond}
	}
	chain := &chainStub{symbols: map[common.Address]string{tokenA: "WETH", tokenB: "USDC", tokenC: "DAI"}}
	decoder, err := dex.NewSwapDecoder(dex.DefaultRegistry(), nil)
	require.NoError(t, err)
	resolver, err := dex.NewMetadataResolver(chain, dex.ResolverConfig{}, nil)
	require.NoError(t, err)

	f := &fixture{chain: chain, export: &captureExport{}, progress: &captureProgress{}}
	f.pipeline, err = NewPipeline(fetcher, decoder, resolver, f.export, f.progress, cfg, nil)
	require.NoError(t, err)
	return f
}

func TestEmptyHistoryCompletesWithNoRows(t *testing.T) {
	f := newFixture(t, staticHistory(), Config{})

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.Rows)
	assert.NoError(t, res.FetchErr)

	require.Equal(t, 1, f.export.count())
	assert.Empty(t, f.export.reports[0].Rows)
	assert.Equal(t, testWallet, f.export.reports[0].Wallet)
	assert.Equal(t, []model.ProgressKind{model.ProgressStarted, model.ProgressCompleted}, f.progress.kinds())
	assert.Zero(t, f.chain.callCount())
}

func TestV2SwapProducesOneRow(t *testing.T) {
	f := newFixture(t, staticHistory(v2SwapTx(t, "0x01", 1700000000, tokenA, tokenB)), Config{})

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, tokenA.Hex(), row.Token0Address)
	assert.Equal(t, "WETH", row.Token0Symbol)
	assert.Equal(t, tokenB.Hex(), row.Token1Address)
	assert.Equal(t, "USDC", row.Token1Symbol)
	assert.Equal(t, pairAB.Hex(), row.PoolAddress)
	assert.Equal(t, "Uniswap v2", row.DexType)
	assert.Equal(t, "2023-11-14T22:13:20Z", row.Date)

	require.Equal(t, 1, f.export.count())
	assert.Equal(t, res.Rows, f.export.reports[0].Rows)
	assert.Equal(t, res.JobID, f.export.reports[0].JobID)
}

func TestLookupFailuresBecomePlaceholders(t *testing.T) {
	f := newFixture(t, staticHistory(v2SwapTx(t, "0x01", 1700000000, tokenA, tokenB)), Config{})
	f.chain.fail = true

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, model.Placeholder, res.Rows[0].Token0Symbol)
	assert.Equal(t, model.Placeholder, res.Rows[0].Token1Symbol)
	assert.Equal(t, model.Placeholder, res.Rows[0].PoolAddress)
	assert.Equal(t, tokenA.Hex(), res.Rows[0].Token0Address)
}

func TestUniversalCommandsKeepOrder(t *testing.T) {
	f := newFixture(t, staticHistory(universalTx(t, "0x02", 1700000000)), Config{})

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, "Uniswap v2", res.Rows[0].DexType)
	assert.Equal(t, tokenA.Hex(), res.Rows[0].Token0Address)
	assert.Equal(t, pairAB.Hex(), res.Rows[0].PoolAddress)

	assert.Equal(t, "Uniswap v3", res.Rows[1].DexType)
	assert.Equal(t, tokenB.Hex(), res.Rows[1].Token0Address)
	assert.Equal(t, tokenC.Hex(), res.Rows[1].Token1Address)
	assert.Equal(t, poolBC.Hex(), res.Rows[1].PoolAddress)
}

func TestRowsFollowTransactionOrder(t *testing.T) {
	f := newFixture(t, staticHistory(
		v2SwapTx(t, "0x01", 1700000000, tokenB, tokenC),
		v2SwapTx(t, "0x02", 1700000100, tokenA, tokenB, tokenC),
	), Config{})

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, tokenB.Hex(), res.Rows[0].Token0Address)
	assert.Equal(t, tokenA.Hex(), res.Rows[1].Token0Address)
	assert.Equal(t, tokenB.Hex(), res.Rows[2].Token0Address)
	assert.Equal(t, 2, res.Transactions)
	assert.Equal(t, 3, res.Legs)
}

func TestCancelDuringResolvingStopsAfterFirstBatch(t *testing.T) {
	path := make([]common.Address, 12)
	for i := range path {
		path[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	f := newFixture(t, staticHistory(v2SwapTx(t, "0x01", 1700000000, path...)), Config{})
	job := f.pipeline.NewJob(testWallet)
	f.chain.onCall = func(n int) {
		if n == 1 {
			job.Cancel()
		}
	}

	res, err := job.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, StateCancelled, job.State())
	assert.Nil(t, res.Rows)

	// The history fetch is one batch; the twelve symbol lookups split 5/5/2
	// and only their first batch ran.
	assert.Equal(t, 5, f.chain.callCount())
	assert.Equal(t, 2, job.Scheduler().BatchesStarted())
	assert.Zero(t, f.export.count())

	events := f.progress.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.ProgressCancelled, last.Kind)
	assert.Empty(t, last.Error)
}

func TestExternalCallsStayWithinWindow(t *testing.T) {
	const window = 100 * time.Millisecond
	path := make([]common.Address, 12)
	for i := range path {
		path[i] = common.BigToAddress(big.NewInt(int64(0x2000 + i)))
	}

	var mu sync.Mutex
	var starts []time.Time
	record := func() {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
	}

	tx := v2SwapTx(t, "0x01", 1700000000, path...)
	fetcher := fetcherFunc(func(context.Context, string) ([]model.RawTransaction, error) {
		record()
		return []model.RawTransaction{tx}, nil
	})
	cfg := Config{Scheduler: scheduler.Config{BatchSize: 5, Window: window, Limiter: scheduler.NewLimiter(window)}}
	f := newFixture(t, fetcher, cfg)
	f.chain.onCall = func(int) { record() }

	// Two wallets back to back share the budget.
	for i := 0; i < 2; i++ {
		res, err := f.pipeline.Analyze(context.Background(), testWallet)
		require.NoError(t, err)
		require.Len(t, res.Rows, 11)
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	require.Greater(t, len(starts), 5)

	// Call start times trail the batch launch by goroutine scheduling jitter.
	const jitter = 10 * time.Millisecond
	for i := 0; i+5 < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i+5].Sub(starts[i]), window-jitter,
			"calls %d..%d started within one window", i, i+5)
	}
}

type failingResolver struct {
	err error
}

func (r failingResolver) ResolveSymbols(context.Context, *scheduler.Scheduler, []common.Address) (map[common.Address]model.ResolvedTokenMeta, error) {
	return nil, r.err
}

func (r failingResolver) ResolvePools(context.Context, *scheduler.Scheduler, []dex.PoolRequest) ([]model.PoolResolution, error) {
	return nil, r.err
}

func TestResolverErrorCarriesCause(t *testing.T) {
	decoder, err := dex.NewSwapDecoder(dex.DefaultRegistry(), nil)
	require.NoError(t, err)
	export := &captureExport{}
	progress := &captureProgress{}
	p, err := NewPipeline(staticHistory(v2SwapTx(t, "0x01", 1700000000, tokenA, tokenB)), decoder,
		failingResolver{err: errors.New("limiter closed")}, export, progress, Config{}, nil)
	require.NoError(t, err)

	res, err := p.Analyze(context.Background(), testWallet)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, res.State)
	assert.Zero(t, export.count())

	events := progress.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.ProgressCancelled, last.Kind)
	assert.Contains(t, last.Error, "limiter closed")
}

func TestFetchFailureCompletesEmpty(t *testing.T) {
	fetcher := fetcherFunc(func(context.Context, string) ([]model.RawTransaction, error) {
		return nil, errors.New("explorer down")
	})
	f := newFixture(t, fetcher, Config{})

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.ErrorIs(t, res.FetchErr, model.ErrFetch)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 1, f.export.count())

	events := f.progress.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, model.ProgressCompleted, events[len(events)-1].Kind)
	assert.Contains(t, events[len(events)-1].Error, "explorer down")
}

func TestFetchFailureFailsWhenConfigured(t *testing.T) {
	fetcher := fetcherFunc(func(context.Context, string) ([]model.RawTransaction, error) {
		return nil, errors.New("explorer down")
	})
	f := newFixture(t, fetcher, Config{FailOnFetchError: true})

	res, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.ErrorIs(t, err, model.ErrFetch)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, f.export.count())
	assert.Equal(t, []model.ProgressKind{model.ProgressStarted, model.ProgressFailed}, f.progress.kinds())
}

func TestCancelIsNoopWhenIdleOrDone(t *testing.T) {
	f := newFixture(t, staticHistory(), Config{})
	job := f.pipeline.NewJob(testWallet)

	job.Cancel()
	assert.Equal(t, StateIdle, job.State())

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)

	job.Cancel()
	assert.Equal(t, StateCompleted, job.State())

	_, err = job.Run(context.Background())
	assert.ErrorIs(t, err, ErrJobStarted)
}

func TestCancelledContextBeforeRun(t *testing.T) {
	f := newFixture(t, staticHistory(v2SwapTx(t, "0x01", 1700000000, tokenA, tokenB)), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.pipeline.Analyze(ctx, testWallet)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, res.State)
	assert.Zero(t, f.export.count())
	assert.Zero(t, f.chain.callCount())
}

func TestHeartbeatStopsAtTerminalState(t *testing.T) {
	fetcher := fetcherFunc(func(ctx context.Context, _ string) ([]model.RawTransaction, error) {
		select {
		case <-time.After(80 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil, nil
	})
	f := newFixture(t, fetcher, Config{HeartbeatInterval: 10 * time.Millisecond})

	_, err := f.pipeline.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	kinds := f.progress.kinds()
	require.GreaterOrEqual(t, len(kinds), 3)
	assert.Equal(t, model.ProgressStarted, kinds[0])
	assert.Equal(t, model.ProgressCompleted, kinds[len(kinds)-1])
	assert.Contains(t, kinds, model.ProgressHeartbeat)
	for _, e := range f.progress.snapshot() {
		if e.Kind == model.ProgressHeartbeat {
			assert.Equal(t, string(StateFetching), e.State)
		}
	}
}

type recordingDecoder struct {
	seen []string
}

func (d *recordingDecoder) Decode(tx model.RawTransaction) []model.SwapLeg {
	d.seen = append(d.seen, tx.Hash)
	return nil
}

func TestTransactionSelection(t *testing.T) {
	txs := []model.RawTransaction{
		{Hash: "0x1"},
		{Hash: "0x2", Failed: true},
		{Hash: "0x3"},
		{Hash: "0x4"},
	}
	chain := &chainStub{}
	resolver, err := dex.NewMetadataResolver(chain, dex.ResolverConfig{}, nil)
	require.NoError(t, err)

	decoder := &recordingDecoder{}
	p, err := NewPipeline(staticHistory(txs...), decoder, resolver, nil, nil, Config{MaxTransactions: 3}, nil)
	require.NoError(t, err)
	res, err := p.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1", "0x3"}, decoder.seen)
	assert.Equal(t, 2, res.Transactions)

	decoder = &recordingDecoder{}
	p, err = NewPipeline(staticHistory(txs...), decoder, resolver, nil, nil, Config{MaxTransactions: 3, IncludeFailed: true}, nil)
	require.NoError(t, err)
	_, err = p.Analyze(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1", "0x2", "0x3"}, decoder.seen)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateFetching, StateFailed))
	assert.False(t, canTransition(StateDecoding, StateFailed))
	assert.False(t, canTransition(StateResolving, StateFailed))
	assert.True(t, canTransition(StateResolving, StateCancelled))
	assert.False(t, canTransition(StateCompleted, StateCancelled))
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateIdle.Terminal())
}
