package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL   string
	TxHashes []common.Hash
	Out      string
	Errors   string
	Resolve  bool
	LogLevel string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"errors":    "./data/decode_errors.jsonl",
		"log-level": "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	hashes, err := ParseTxHashes(getStringSlice(v, "tx"))
	if err != nil {
		return DecodeConfig{}, fmt.Errorf("tx: %w", err)
	}

	cfg := DecodeConfig{
		RPCURL:   v.GetString("rpc"),
		TxHashes: hashes,
		Out:      v.GetString("out"),
		Errors:   v.GetString("errors"),
		Resolve:  v.GetBool("resolve"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values the decode command cannot run without.
func (c DecodeConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if len(c.TxHashes) == 0 {
		return fmt.Errorf("tx is required")
	}
	return nil
}
