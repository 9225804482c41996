package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "swapscope",
		Short:        "Uniswap swap analysis for Ethereum wallets",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze wallet history and export swap legs",
		RunE:  runAnalyze,
	}

	analyzeCmd.Flags().StringSlice("wallet", nil, "wallet addresses (comma-separated)")
	analyzeCmd.Flags().String("rpc", "", "Ethereum RPC URL for contract calls (explorer proxy when empty)")
	analyzeCmd.Flags().String("explorer-url", "https://api.etherscan.io/v2/api", "Etherscan-compatible API URL")
	analyzeCmd.Flags().String("explorer-key", "", "explorer API key")
	analyzeCmd.Flags().Uint64("chain-id", 1, "explorer chain id")
	analyzeCmd.Flags().Int("max-transactions", 100, "transactions analyzed per wallet, oldest first")
	analyzeCmd.Flags().Bool("include-failed", false, "decode reverted transactions too")
	analyzeCmd.Flags().Bool("fail-on-fetch-error", false, "end the job as failed when history cannot be fetched")
	analyzeCmd.Flags().Int("calls-per-window", 5, "external calls started per window")
	analyzeCmd.Flags().Duration("window", time.Second, "rate limit window")
	analyzeCmd.Flags().Duration("heartbeat", 10*time.Second, "progress heartbeat interval")
	analyzeCmd.Flags().Int("max-retries", 3, "history fetch retry attempts")
	analyzeCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	analyzeCmd.Flags().String("out", "./data/swaps.csv", "report output path")
	analyzeCmd.Flags().String("format", "csv", "report format (csv, jsonl)")
	analyzeCmd.Flags().String("pg-dsn", "", "Postgres DSN (optional)")
	analyzeCmd.Flags().String("nats-url", "", "NATS URL for progress and reports (optional)")
	analyzeCmd.Flags().String("nats-subject", "swapscope", "NATS subject prefix")
	analyzeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(analyzeCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode single transactions into swap legs",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	decodeCmd.Flags().StringSlice("tx", nil, "transaction hashes (comma-separated)")
	decodeCmd.Flags().String("out", "", "output JSONL path (stdout when empty)")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().Bool("resolve", false, "resolve symbols and pool addresses for each leg")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
