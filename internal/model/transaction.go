package model

// RawTransaction is a wallet transaction as delivered by the history source.
type RawTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Input       string `json:"input"`
	Timestamp   uint64 `json:"timestamp"`
	BlockNumber uint64 `json:"block_number"`
	Failed      bool   `json:"failed"`
}
