package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapScope/internal/dex"
	"swapScope/internal/model"
	"swapScope/internal/scheduler"
)

// ErrJobStarted is returned when Run is called twice on one job.
var ErrJobStarted = errors.New("job already started")

// Result summarizes a finished job. Rows is nil unless the job completed.
// FetchErr is set when the history could not be loaded; such a job still
// completes with zero rows unless FailOnFetchError is configured.
type Result struct {
	JobID        string
	Wallet       string
	State        State
	Transactions int
	Legs         int
	Rows         []model.AnalysisRow
	FetchErr     error
}

// Job is one analysis run for a wallet. It is single-use.
type Job struct {
	id     string
	wallet string
	p      *Pipeline
	sched  *scheduler.Scheduler
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	ran    bool
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Wallet() string {
	return j.wallet
}

// Scheduler returns the job's call scheduler.
func (j *Job) Scheduler() *scheduler.Scheduler {
	return j.sched
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Cancel stops a running job. It does nothing before Run and after the job
// reached a terminal state.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateIdle || j.state.Terminal() {
		return
	}
	j.state = StateCancelled
	if j.cancel != nil {
		j.cancel()
	}
}

// Run drives the job to a terminal state. The returned error is non-nil when
// the job was cancelled, failed, or its report could not be exported.
func (j *Job) Run(ctx context.Context) (Result, error) {
	j.mu.Lock()
	if j.ran {
		j.mu.Unlock()
		return Result{}, ErrJobStarted
	}
	j.ran = true
	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.mu.Unlock()
	defer cancel()

	if err := j.advance(ctx, StateFetching); err != nil {
		j.notify(model.ProgressCancelled, StateCancelled, 0, nil)
		return Result{JobID: j.id, Wallet: j.wallet, State: StateCancelled}, err
	}
	j.logger.Info("analysis started")
	j.notify(model.ProgressStarted, StateFetching, 0, nil)

	stop := j.startHeartbeat()
	res, err := j.execute(ctx)
	stop()

	res.State = j.State()
	switch res.State {
	case StateCompleted:
		j.logger.Info("analysis completed",
			zap.Int("transactions", res.Transactions),
			zap.Int("legs", res.Legs),
			zap.Int("rows", len(res.Rows)),
		)
		cause := err
		if cause == nil {
			cause = res.FetchErr
		}
		j.notify(model.ProgressCompleted, res.State, len(res.Rows), cause)
	case StateFailed:
		j.logger.Warn("analysis failed", zap.Error(err))
		j.notify(model.ProgressFailed, res.State, 0, err)
	default:
		res.Rows = nil
		if isCancellation(err) {
			j.logger.Info("analysis cancelled")
			j.notify(model.ProgressCancelled, StateCancelled, 0, nil)
		} else {
			j.logger.Warn("analysis aborted", zap.Error(err))
			j.notify(model.ProgressCancelled, StateCancelled, 0, err)
		}
	}
	return res, err
}

func (j *Job) execute(ctx context.Context) (Result, error) {
	res := Result{JobID: j.id, Wallet: j.wallet}

	txs, err := j.fetch(ctx)
	if abortErr := j.interrupted(ctx); abortErr != nil {
		return res, abortErr
	}
	if err != nil {
		if !errors.Is(err, model.ErrFetch) {
			err = fmt.Errorf("%w: %v", model.ErrFetch, err)
		}
		res.FetchErr = err
		if j.p.cfg.FailOnFetchError {
			if advErr := j.advance(ctx, StateFailed); advErr != nil {
				return res, advErr
			}
			return res, err
		}
		j.logger.Warn("history unavailable, reporting no swaps", zap.Error(err))
		return j.complete(ctx, res, []model.AnalysisRow{})
	}

	txs = j.selectTransactions(txs)
	res.Transactions = len(txs)

	if err := j.advance(ctx, StateDecoding); err != nil {
		return res, err
	}
	legs := make([]model.SwapLeg, 0, len(txs))
	for _, tx := range txs {
		legs = append(legs, j.p.decoder.Decode(tx)...)
	}
	res.Legs = len(legs)
	j.logger.Debug("transactions decoded", zap.Int("transactions", len(txs)), zap.Int("legs", len(legs)))

	if err := j.advance(ctx, StateResolving); err != nil {
		return res, err
	}
	rows, err := j.resolve(ctx, legs)
	if err != nil {
		return res, j.abort(ctx, err)
	}
	return j.complete(ctx, res, rows)
}

// fetch loads the history as one scheduled call so it counts against the
// same window as the metadata lookups.
func (j *Job) fetch(ctx context.Context) ([]model.RawTransaction, error) {
	results, err := scheduler.Run(ctx, j.sched, []scheduler.Op[[]model.RawTransaction]{
		func(ctx context.Context) ([]model.RawTransaction, error) {
			return j.p.fetcher.FetchHistory(ctx, j.wallet)
		},
	})
	if err != nil {
		return nil, err
	}
	return results[0].Value, results[0].Err
}

// selectTransactions keeps the oldest MaxTransactions entries and drops
// reverted ones unless IncludeFailed is set.
func (j *Job) selectTransactions(txs []model.RawTransaction) []model.RawTransaction {
	if len(txs) > j.p.cfg.MaxTransactions {
		txs = txs[:j.p.cfg.MaxTransactions]
	}
	if j.p.cfg.IncludeFailed {
		return txs
	}
	out := make([]model.RawTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Failed {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func (j *Job) resolve(ctx context.Context, legs []model.SwapLeg) ([]model.AnalysisRow, error) {
	rows := make([]model.AnalysisRow, len(legs))
	if len(legs) == 0 {
		return rows, nil
	}

	seen := make(map[common.Address]struct{}, len(legs)*2)
	tokens := make([]common.Address, 0, len(legs)*2)
	reqs := make([]dex.PoolRequest, len(legs))
	for i, leg := range legs {
		for _, token := range []common.Address{leg.TokenIn, leg.TokenOut} {
			if _, ok := seen[token]; !ok {
				seen[token] = struct{}{}
				tokens = append(tokens, token)
			}
		}
		reqs[i] = dex.PoolRequest{TokenA: leg.TokenIn, TokenB: leg.TokenOut, Dex: leg.Dex, KnownFee: leg.PoolFee}
	}

	symbols, err := j.p.resolver.ResolveSymbols(ctx, j.sched, tokens)
	if err != nil {
		return nil, err
	}
	if err := j.interrupted(ctx); err != nil {
		return nil, err
	}
	pools, err := j.p.resolver.ResolvePools(ctx, j.sched, reqs)
	if err != nil {
		return nil, err
	}
	if len(pools) != len(legs) {
		return nil, fmt.Errorf("resolver returned %d pools for %d legs", len(pools), len(legs))
	}

	for i, leg := range legs {
		rows[i] = buildRow(leg, symbols, pools[i])
	}
	return rows, nil
}

func buildRow(leg model.SwapLeg, symbols map[common.Address]model.ResolvedTokenMeta, pool model.PoolResolution) model.AnalysisRow {
	symbol := func(token common.Address) string {
		if meta, ok := symbols[token]; ok && meta.Symbol != "" {
			return meta.Symbol
		}
		return model.Placeholder
	}
	poolAddress := model.Placeholder
	if pool.Found() {
		poolAddress = pool.PoolAddress
	}
	return model.AnalysisRow{
		Token0Address: leg.TokenIn.Hex(),
		Token0Symbol:  symbol(leg.TokenIn),
		Token1Address: leg.TokenOut.Hex(),
		Token1Symbol:  symbol(leg.TokenOut),
		PoolAddress:   poolAddress,
		Date:          model.FormatDate(leg.Timestamp),
		DexType:       leg.Dex.String(),
	}
}

func (j *Job) complete(ctx context.Context, res Result, rows []model.AnalysisRow) (Result, error) {
	if err := j.advance(ctx, StateCompleted); err != nil {
		return res, err
	}
	res.Rows = rows
	if j.p.export == nil {
		return res, nil
	}
	report := model.Report{
		JobID:       j.id,
		Wallet:      j.wallet,
		GeneratedAt: j.p.now().UTC(),
		Rows:        rows,
	}
	if err := j.p.export.Export(ctx, report); err != nil {
		return res, fmt.Errorf("export report: %w", err)
	}
	return res, nil
}

// advance moves the job to next unless it was cancelled meanwhile.
func (j *Job) advance(ctx context.Context, next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCancelled {
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		j.state = StateCancelled
		return err
	}
	if !canTransition(j.state, next) {
		return fmt.Errorf("invalid transition %s -> %s", j.state, next)
	}
	j.state = next
	return nil
}

// interrupted reports a pending cancellation and records it.
func (j *Job) interrupted(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCancelled {
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		j.state = StateCancelled
		return err
	}
	return nil
}

func (j *Job) abort(ctx context.Context, err error) error {
	if cancelErr := j.interrupted(ctx); cancelErr != nil {
		return cancelErr
	}
	j.mu.Lock()
	j.state = StateCancelled
	j.mu.Unlock()
	return fmt.Errorf("resolve metadata: %w", err)
}

func (j *Job) startHeartbeat() func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(j.p.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				state := j.State()
				if state.Terminal() {
					return
				}
				j.notify(model.ProgressHeartbeat, state, 0, nil)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (j *Job) notify(kind model.ProgressKind, state State, rows int, cause error) {
	event := model.ProgressEvent{
		JobID:  j.id,
		Wallet: j.wallet,
		Kind:   kind,
		State:  string(state),
		Rows:   rows,
		At:     j.p.now().UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	j.p.progress.Notify(event)
}

// isCancellation reports whether err came from the caller stopping the job.
func isCancellation(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
