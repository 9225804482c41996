package model

import "github.com/ethereum/go-ethereum/common"

// Placeholder is substituted for any metadata that could not be resolved.
const Placeholder = "-"

// ResolvedTokenMeta captures the display symbol of an ERC20 token.
type ResolvedTokenMeta struct {
	Address   common.Address `json:"address"`
	Symbol    string         `json:"symbol"`
	Defaulted bool           `json:"defaulted"`
}
