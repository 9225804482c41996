package model

import "github.com/ethereum/go-ethereum/common"

// SwapLeg is one token-in/token-out hop decoded from router call data.
type SwapLeg struct {
	TxHash    string         `json:"tx_hash"`
	TokenIn   common.Address `json:"token_in"`
	TokenOut  common.Address `json:"token_out"`
	Dex       DexVariant     `json:"dex"`
	PoolFee   *uint32        `json:"pool_fee,omitempty"`
	Timestamp uint64         `json:"timestamp"`
}

// FeePtr returns a pointer to a copy of fee.
func FeePtr(fee uint32) *uint32 {
	return &fee
}
