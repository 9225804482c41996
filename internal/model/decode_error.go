package model

// DecodeError records a decode failure for a transaction.
type DecodeError struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	To          string `json:"to"`
	Selector    string `json:"selector"`
	Error       string `json:"error"`
}
