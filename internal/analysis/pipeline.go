package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"swapScope/internal/dex"
	"swapScope/internal/model"
	"swapScope/internal/scheduler"
)

const (
	DefaultMaxTransactions   = 100
	DefaultHeartbeatInterval = 10 * time.Second
)

// HistoryFetcher returns a wallet's transactions, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, wallet string) ([]model.RawTransaction, error)
}

// Decoder turns one transaction into swap legs and never fails.
type Decoder interface {
	Decode(tx model.RawTransaction) []model.SwapLeg
}

// Resolver supplies symbols and pool addresses through a scheduler.
type Resolver interface {
	ResolveSymbols(ctx context.Context, s *scheduler.Scheduler, tokens []common.Address) (map[common.Address]model.ResolvedTokenMeta, error)
	ResolvePools(ctx context.Context, s *scheduler.Scheduler, reqs []dex.PoolRequest) ([]model.PoolResolution, error)
}

// ExportSink receives the finished report of a completed job.
type ExportSink interface {
	Export(ctx context.Context, report model.Report) error
}

// ProgressSink receives lifecycle and heartbeat events.
type ProgressSink interface {
	Notify(event model.ProgressEvent)
}

// Config tunes a Pipeline. Zero values select defaults. Set
// Scheduler.Limiter to share the call budget with other pipelines or clients.
type Config struct {
	MaxTransactions   int
	IncludeFailed     bool
	FailOnFetchError  bool
	HeartbeatInterval time.Duration
	Scheduler         scheduler.Config
}

// Pipeline builds analysis jobs over shared collaborators. Each job gets its
// own scheduler; all of them draw from the pipeline's rate limiter.
type Pipeline struct {
	fetcher  HistoryFetcher
	decoder  Decoder
	resolver Resolver
	export   ExportSink
	progress ProgressSink
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(fetcher HistoryFetcher, decoder Decoder, resolver Resolver, export ExportSink, progress ProgressSink, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("history fetcher is nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = DefaultMaxTransactions
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Scheduler.Limiter == nil {
		cfg.Scheduler.Limiter = scheduler.NewLimiter(cfg.Scheduler.Window)
	}
	if progress == nil {
		progress = MultiProgress(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:  fetcher,
		decoder:  decoder,
		resolver: resolver,
		export:   export,
		progress: progress,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "pipeline")),
		now:      time.Now,
	}, nil
}

// NewJob prepares an idle job for wallet.
func (p *Pipeline) NewJob(wallet string) *Job {
	id := uuid.NewString()
	return &Job{
		id:     id,
		wallet: wallet,
		p:      p,
		sched:  scheduler.New(p.cfg.Scheduler, p.logger.With(zap.String("job", id))),
		state:  StateIdle,
		logger: p.logger.With(zap.String("job", id), zap.String("wallet", wallet)),
	}
}

// Analyze runs a fresh job for wallet to completion.
func (p *Pipeline) Analyze(ctx context.Context, wallet string) (Result, error) {
	return p.NewJob(wallet).Run(ctx)
}
