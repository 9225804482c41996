package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// AnalyzeConfig holds configuration for the analyze command.
type AnalyzeConfig struct {
	Wallets          []common.Address
	RPCURL           string
	ExplorerURL      string
	ExplorerKey      string
	ChainID          uint64
	MaxTransactions  int
	IncludeFailed    bool
	FailOnFetchError bool
	CallsPerWindow   int
	Window           time.Duration
	Heartbeat        time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	Out              string
	Format           string
	PGDSN            string
	NATSURL          string
	NATSSubject      string
	LogLevel         string
}

// LoadAnalyze merges config file, environment variables, and flags into AnalyzeConfig.
func LoadAnalyze(cfgFile string, flags *pflag.FlagSet) (AnalyzeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"explorer-url":     "https://api.etherscan.io/v2/api",
		"chain-id":         uint64(1),
		"max-transactions": 100,
		"calls-per-window": 5,
		"window":           time.Second,
		"heartbeat":        10 * time.Second,
		"max-retries":      3,
		"retry-backoff":    500 * time.Millisecond,
		"out":              "./data/swaps.csv",
		"format":           FormatCSV,
		"nats-subject":     "swapscope",
		"log-level":        "info",
	})
	if err != nil {
		return AnalyzeConfig{}, err
	}

	wallets, err := ParseAddresses(getStringSlice(v, "wallet"))
	if err != nil {
		return AnalyzeConfig{}, fmt.Errorf("wallet: %w", err)
	}

	cfg := AnalyzeConfig{
		Wallets:          wallets,
		RPCURL:           v.GetString("rpc"),
		ExplorerURL:      v.GetString("explorer-url"),
		ExplorerKey:      v.GetString("explorer-key"),
		ChainID:          v.GetUint64("chain-id"),
		MaxTransactions:  v.GetInt("max-transactions"),
		IncludeFailed:    v.GetBool("include-failed"),
		FailOnFetchError: v.GetBool("fail-on-fetch-error"),
		CallsPerWindow:   v.GetInt("calls-per-window"),
		Window:           v.GetDuration("window"),
		Heartbeat:        v.GetDuration("heartbeat"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Out:              v.GetString("out"),
		Format:           v.GetString("format"),
		PGDSN:            v.GetString("pg-dsn"),
		NATSURL:          v.GetString("nats-url"),
		NATSSubject:      v.GetString("nats-subject"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values the analyze command cannot run without.
func (c AnalyzeConfig) Validate() error {
	if len(c.Wallets) == 0 {
		return fmt.Errorf("wallet is required")
	}
	if c.MaxTransactions <= 0 {
		return fmt.Errorf("max-transactions must be > 0")
	}
	if c.CallsPerWindow <= 0 {
		return fmt.Errorf("calls-per-window must be > 0")
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0")
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be > 0")
	}
	switch c.Format {
	case FormatCSV, FormatJSONL:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	return nil
}
