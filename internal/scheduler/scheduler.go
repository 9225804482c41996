package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize = 5
	DefaultWindow    = time.Second
)

// Config controls how many operations may start per window. A Limiter
// shared between schedulers makes them draw from one window budget; without
// one each scheduler paces itself.
type Config struct {
	BatchSize int
	Window    time.Duration
	Limiter   *rate.Limiter
}

// Op is one external call. Its error is reported in the matching Result and
// never aborts the run.
type Op[T any] func(ctx context.Context) (T, error)

// Result is the outcome of the Op at the same index.
type Result[T any] struct {
	Value T
	Err   error
}

// Scheduler starts at most BatchSize operations per Window. Runs on the same
// instance are serialized.
type Scheduler struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	started int
}

// NewLimiter returns a limiter that admits one batch per window.
func NewLimiter(window time.Duration) *rate.Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return rate.NewLimiter(rate.Every(window), 1)
}

// New builds a Scheduler, filling zero config values with defaults.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(cfg.Window)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		limiter: cfg.Limiter,
		logger:  logger.With(zap.String("component", "scheduler")),
	}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// BatchesStarted returns how many batches this scheduler has launched.
func (s *Scheduler) BatchesStarted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Run executes ops in batches and returns their results in submission order.
// Once ctx is done no further batch starts; the batch in flight is awaited,
// its results are discarded and ctx.Err() is returned.
func Run[T any](ctx context.Context, s *Scheduler, ops []Op[T]) ([]Result[T], error) {
	if s == nil {
		return nil, fmt.Errorf("scheduler is nil")
	}
	results := make([]Result[T], len(ops))
	if len(ops) == 0 {
		return results, nil
	}

	batches, err := SplitBatches(len(ops), s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, batch := range batches {
		if err := s.waitWindow(ctx); err != nil {
			s.logger.Debug("run cancelled", zap.Int("batch", i), zap.Int("batches", len(batches)))
			return nil, err
		}

		s.started++
		s.logger.Debug("batch start", zap.Int("batch", i), zap.Int("size", batch.Size()), zap.Int("batches", len(batches)))

		var g errgroup.Group
		for idx := batch.Start; idx < batch.End; idx++ {
			idx := idx
			op := ops[idx]
			g.Go(func() error {
				results[idx] = invoke(ctx, op)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			s.logger.Debug("run cancelled", zap.Int("batch", i), zap.Int("batches", len(batches)))
			return nil, err
		}
	}

	return results, nil
}

// waitWindow blocks until the limiter admits the next batch.
func (s *Scheduler) waitWindow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("wait for window: %w", err)
	}
	return nil
}

func invoke[T any](ctx context.Context, op Op[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("operation panicked: %v", r)}
		}
	}()
	if op == nil {
		return Result[T]{Err: fmt.Errorf("operation is nil")}
	}
	value, err := op(ctx)
	return Result[T]{Value: value, Err: err}
}
