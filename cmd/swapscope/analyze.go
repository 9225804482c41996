package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapScope/internal/analysis"
	"swapScope/internal/chain"
	"swapScope/internal/config"
	"swapScope/internal/dex"
	"swapScope/internal/explorer"
	"swapScope/internal/notify"
	"swapScope/internal/scheduler"
	"swapScope/internal/storage"
	"swapScope/internal/storage/postgres"
)

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAnalyze(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One budget for every external call of the run, across wallets.
	limiter := scheduler.NewLimiter(cfg.Window)

	explorerClient := explorer.NewClient(explorer.Config{
		BaseURL:         cfg.ExplorerURL,
		APIKey:          cfg.ExplorerKey,
		ChainID:         cfg.ChainID,
		MaxTransactions: cfg.MaxTransactions,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryBackoff,
		Limiter:         limiter,
	}, logger)

	var caller dex.ContractCaller = explorerClient
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		chainID, err := chainClient.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		if chainID.Uint64() != cfg.ChainID {
			return fmt.Errorf("rpc chain id %s does not match chain-id %d", chainID, cfg.ChainID)
		}
		caller = chainClient
	}

	decoder, err := dex.NewSwapDecoder(dex.DefaultRegistry(), logger)
	if err != nil {
		return err
	}
	resolver, err := dex.NewMetadataResolver(caller, dex.ResolverConfig{}, logger)
	if err != nil {
		return err
	}

	var shared storage.MultiExporter
	progress := analysis.MultiProgress{analysis.NewLogProgress(logger)}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		shared = append(shared, store)
	}

	if cfg.NATSURL != "" {
		publisher, err := notify.Connect(notify.Config{
			URL:            cfg.NATSURL,
			SubjectPrefix:  cfg.NATSSubject,
			ConnectTimeout: 10 * time.Second,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  10,
		}, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		shared = append(shared, publisher)
		progress = append(progress, publisher)
	}

	pipelineCfg := analysis.Config{
		MaxTransactions:   cfg.MaxTransactions,
		IncludeFailed:     cfg.IncludeFailed,
		FailOnFetchError:  cfg.FailOnFetchError,
		HeartbeatInterval: cfg.Heartbeat,
		Scheduler: scheduler.Config{
			BatchSize: cfg.CallsPerWindow,
			Window:    cfg.Window,
			Limiter:   limiter,
		},
	}

	logger.Info("analyze start",
		zap.Int("wallets", len(cfg.Wallets)),
		zap.String("explorer", cfg.ExplorerURL),
		zap.Bool("rpc_calls", cfg.RPCURL != ""),
		zap.Int("max_transactions", cfg.MaxTransactions),
		zap.Int("calls_per_window", cfg.CallsPerWindow),
		zap.Duration("window", cfg.Window),
		zap.String("out", cfg.Out),
		zap.String("format", cfg.Format),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("nats", cfg.NATSURL != ""),
	)

	var completed, failed int
	for _, wallet := range cfg.Wallets {
		out := outputPath(cfg.Out, wallet.Hex(), len(cfg.Wallets) > 1 && cfg.Format == config.FormatCSV)
		export := append(storage.MultiExporter{fileExporter(cfg.Format, out)}, shared...)

		pipeline, err := analysis.NewPipeline(explorerClient, decoder, resolver, export, progress, pipelineCfg, logger)
		if err != nil {
			return err
		}

		res, err := pipeline.Analyze(ctx, wallet.Hex())
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return err
			}
			failed++
			logger.Warn("wallet analysis failed", zap.String("wallet", wallet.Hex()), zap.Error(err))
			continue
		}
		completed++
		if res.FetchErr != nil {
			logger.Warn("no history for wallet", zap.String("wallet", wallet.Hex()), zap.Error(res.FetchErr))
		}
		logger.Info("report written",
			zap.String("wallet", wallet.Hex()),
			zap.String("job", res.JobID),
			zap.Int("rows", len(res.Rows)),
			zap.String("out", out),
		)
	}

	logger.Info("analyze complete", zap.Int("completed", completed), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d wallets failed", failed, len(cfg.Wallets))
	}
	return nil
}

func fileExporter(format, path string) storage.Exporter {
	if format == config.FormatJSONL {
		return storage.NewJsonlStorage(path)
	}
	return storage.NewCSVStorage(path)
}

// outputPath gives each wallet its own file when perWallet is set:
// swaps.csv becomes swaps_0xabc....csv.
func outputPath(path, wallet string, perWallet bool) string {
	if !perWallet {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strings.ToLower(wallet) + ext
}
