package model

import "github.com/ethereum/go-ethereum/common"

// PoolResolution is the outcome of a factory lookup for a token pair.
type PoolResolution struct {
	TokenA      common.Address `json:"token_a"`
	TokenB      common.Address `json:"token_b"`
	Dex         DexVariant     `json:"dex"`
	FeeUsed     *uint32        `json:"fee_used,omitempty"`
	PoolAddress string         `json:"pool_address"`
}

// Found reports whether a pool address was resolved.
func (p PoolResolution) Found() bool {
	return p.PoolAddress != "" && p.PoolAddress != Placeholder
}

// Pool is a resolved pool seen in a report, kept as a catalog entry.
type Pool struct {
	Address string `json:"address"`
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	Dex     string `json:"dex"`
}
