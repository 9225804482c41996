package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallContract performs eth_call through the explorer's proxy module. It does
// not retry: callers run it under a call-rate budget.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("eth_call: missing target address")
	}
	tag := "latest"
	if blockNumber != nil {
		tag = hexutil.EncodeBig(blockNumber)
	}

	params := url.Values{}
	params.Set("to", msg.To.Hex())
	params.Set("data", hexutil.Encode(msg.Data))
	params.Set("tag", tag)

	env, err := c.get(ctx, c.apiURL("proxy", "eth_call", params))
	if err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("eth_call: rpc error %d: %s", env.Error.Code, env.Error.Message)
	}
	if env.Status == "0" {
		return nil, fmt.Errorf("eth_call: %s: %s", env.Message, env.resultText())
	}

	var result string
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("eth_call: result: %w", err)
	}
	out, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("eth_call: decode result %q: %w", result, err)
	}
	return out, nil
}
