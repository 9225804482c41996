package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"swapScope/internal/model"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// TransactionByHash loads a mined transaction together with its receipt
// status and block timestamp.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (model.RawTransaction, error) {
	tx, pending, err := c.ethClient.TransactionByHash(ctx, hash)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("get transaction %s: %w", hash.Hex(), err)
	}
	if pending {
		return model.RawTransaction{}, fmt.Errorf("transaction %s is pending", hash.Hex())
	}

	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
	}
	blockNumber := receipt.BlockNumber.Uint64()
	ts, err := c.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("get block %d timestamp: %w", blockNumber, err)
	}

	return toRawTransaction(tx, receipt, ts), nil
}

func toRawTransaction(tx *types.Transaction, receipt *types.Receipt, ts uint64) model.RawTransaction {
	raw := model.RawTransaction{
		Hash:        tx.Hash().Hex(),
		Input:       hexutil.Encode(tx.Data()),
		Timestamp:   ts,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Failed:      receipt.Status == types.ReceiptStatusFailed,
	}
	if to := tx.To(); to != nil {
		raw.To = to.Hex()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		raw.From = from.Hex()
	}
	return raw
}
