package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// ContractCaller performs read-only contract calls. Both the RPC client and
// the explorer proxy satisfy it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}
