package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"swapScope/internal/analysis"
	"swapScope/internal/chain"
	"swapScope/internal/config"
	"swapScope/internal/dex"
	"swapScope/internal/model"
	"swapScope/internal/scheduler"
)

// decodedTx is one output line of the decode command.
type decodedTx struct {
	TxHash      string              `json:"tx_hash"`
	BlockNumber uint64              `json:"block_number"`
	Router      string              `json:"router"`
	Variant     model.RouterVariant `json:"variant"`
	Failed      bool                `json:"failed"`
	Legs        []model.SwapLeg     `json:"legs"`
	Rows        []model.AnalysisRow `json:"rows,omitempty"`
}

// txFetcher serves a single transaction as a wallet history.
type txFetcher struct {
	tx model.RawTransaction
}

func (f txFetcher) FetchHistory(context.Context, string) ([]model.RawTransaction, error) {
	return []model.RawTransaction{f.tx}, nil
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
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

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	registry := dex.DefaultRegistry()
	decoder, err := dex.NewSwapDecoder(registry, logger)
	if err != nil {
		return err
	}

	var resolver *dex.MetadataResolver
	limiter := scheduler.NewLimiter(scheduler.DefaultWindow)
	if cfg.Resolve {
		resolver, err = dex.NewMetadataResolver(chainClient, dex.ResolverConfig{}, logger)
		if err != nil {
			return err
		}
	}

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("chain_id", chainID.String()),
		zap.Int("transactions", len(cfg.TxHashes)),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("resolve", cfg.Resolve),
	)

	var decoded, skipped, failed int
	for _, hash := range cfg.TxHashes {
		tx, err := chainClient.TransactionByHash(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			writeDecodeError(errWriter, model.DecodeError{TxHash: hash.Hex(), Error: err.Error()})
			continue
		}

		desc, ok := registry.Classify(tx.To)
		if !ok {
			skipped++
			logger.Debug("not a known router", zap.String("tx", tx.Hash), zap.String("to", tx.To))
			continue
		}

		legs, err := decoder.DecodeDetailed(tx)
		if errors.Is(err, dex.ErrUnsupportedMethod) {
			skipped++
			logger.Debug("not a swap call", zap.String("tx", tx.Hash), zap.Error(err))
			continue
		}
		if err != nil {
			failed++
			writeDecodeError(errWriter, decodeErrorFromTx(tx, err))
			continue
		}

		out := decodedTx{
			TxHash:      tx.Hash,
			BlockNumber: tx.BlockNumber,
			Router:      desc.Name,
			Variant:     desc.Variant,
			Failed:      tx.Failed,
			Legs:        legs,
		}
		if resolver != nil && len(legs) > 0 {
			rows, err := resolveRows(ctx, decoder, resolver, limiter, tx, logger)
			if err != nil {
				return err
			}
			out.Rows = rows
		}

		if err := outWriter.Write(out); err != nil {
			return err
		}
		decoded++
	}

	logger.Info("decode complete",
		zap.Int("total", len(cfg.TxHashes)),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

// resolveRows runs the transaction through a one-transaction analysis so the
// rows match what analyze would export for it.
func resolveRows(ctx context.Context, decoder analysis.Decoder, resolver analysis.Resolver, limiter *rate.Limiter, tx model.RawTransaction, logger *zap.Logger) ([]model.AnalysisRow, error) {
	cfg := analysis.Config{
		IncludeFailed: true,
		Scheduler:     scheduler.Config{Limiter: limiter},
	}
	pipeline, err := analysis.NewPipeline(txFetcher{tx: tx}, decoder, resolver, nil, nil, cfg, logger)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Analyze(ctx, tx.From)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", tx.Hash, err)
	}
	return res.Rows, nil
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// newJSONLWriter opens path for JSON lines. An empty path writes to stdout.
func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	if path == "" {
		return &jsonlWriter{writer: bufio.NewWriter(os.Stdout)}, nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	err := w.writer.Flush()
	if w.file == nil {
		return err
	}
	if err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func decodeErrorFromTx(tx model.RawTransaction, err error) model.DecodeError {
	return model.DecodeError{
		TxHash:      tx.Hash,
		BlockNumber: tx.BlockNumber,
		To:          strings.ToLower(tx.To),
		Selector:    selector(tx.Input),
		Error:       err.Error(),
	}
}

// selector returns the 4-byte method id of hex call data, or "" when the
// input is shorter.
func selector(input string) string {
	input = strings.TrimPrefix(strings.TrimPrefix(input, "0x"), "0X")
	if len(input) < 8 {
		return ""
	}
	return "0x" + strings.ToLower(input[:8])
}

func writeDecodeError(writer *jsonlWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
