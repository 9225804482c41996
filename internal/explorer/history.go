package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapScope/internal/model"
)

const noTransactionsMessage = "No transactions found"

type txListItem struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Input           string `json:"input"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
}

// TxListURL returns the account/txlist URL for the oldest transactions of wallet.
func (c *Client) TxListURL(wallet string) string {
	params := url.Values{}
	params.Set("address", wallet)
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(c.maxTxs))
	params.Set("sort", "asc")
	return c.apiURL("account", "txlist", params)
}

// FetchHistory returns the wallet's normal transactions, oldest first, capped
// at the configured maximum. Errors wrap model.ErrFetch.
func (c *Client) FetchHistory(ctx context.Context, wallet string) ([]model.RawTransaction, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: invalid wallet address %q", model.ErrFetch, wallet)
	}

	var items []txListItem
	err := c.withRetry(ctx, "txlist", func(ctx context.Context) error {
		env, err := c.get(ctx, c.TxListURL(wallet))
		if err != nil {
			return err
		}
		if !env.IsOK() {
			if strings.HasPrefix(env.Message, noTransactionsMessage) {
				items = nil
				return nil
			}
			return fmt.Errorf("txlist: %s: %s", env.Message, env.resultText())
		}
		if err := json.Unmarshal(env.Result, &items); err != nil {
			return permanent(fmt.Errorf("decode txlist: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrFetch, err)
	}

	txs := make([]model.RawTransaction, 0, len(items))
	for _, item := range items {
		tx, err := item.toRawTransaction()
		if err != nil {
			c.logger.Warn("skip malformed history entry", zap.String("hash", item.Hash), zap.Error(err))
			continue
		}
		txs = append(txs, tx)
	}
	if len(txs) > c.maxTxs {
		txs = txs[:c.maxTxs]
	}
	c.logger.Debug("history fetched", zap.String("wallet", wallet), zap.Int("transactions", len(txs)))
	return txs, nil
}

func (i txListItem) toRawTransaction() (model.RawTransaction, error) {
	ts, err := strconv.ParseUint(i.TimeStamp, 10, 64)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("timestamp %q: %w", i.TimeStamp, err)
	}
	block, err := strconv.ParseUint(i.BlockNumber, 10, 64)
	if err != nil {
		return model.RawTransaction{}, fmt.Errorf("block number %q: %w", i.BlockNumber, err)
	}
	return model.RawTransaction{
		Hash:        i.Hash,
		From:        i.From,
		To:          i.To,
		Input:       i.Input,
		Timestamp:   ts,
		BlockNumber: block,
		Failed:      i.IsError == "1" || i.TxReceiptStatus == "0",
	}, nil
}
