package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL         = "https://api.etherscan.io/v2/api"
	DefaultChainID         = 1
	DefaultMaxTransactions = 100
	DefaultTimeout         = 30 * time.Second
)

// Config configures an Etherscan-compatible explorer client.
type Config struct {
	BaseURL         string
	APIKey          string
	ChainID         uint64
	MaxTransactions int
	MaxRetries      int
	RetryDelay      time.Duration
	HTTPClient      *http.Client
	// Limiter, when set, admits every retry attempt. First attempts are
	// expected to be paced by the caller.
	Limiter *rate.Limiter
}

// Client talks to an Etherscan-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    uint64
	maxTxs     int
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = DefaultMaxTransactions
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		chainID:    cfg.ChainID,
		maxTxs:     cfg.MaxTransactions,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		http:       cfg.HTTPClient,
		limiter:    cfg.Limiter,
		logger:     logger.With(zap.String("component", "explorer")),
	}
}

// envelope is the common {status, message, result} response. Proxy endpoints
// answer in JSON-RPC form and fill Error instead.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *envelope) IsOK() bool {
	return e.Status == "1"
}

// resultText returns Result when it is a JSON string, which is how the API
// reports error details.
func (e *envelope) resultText() string {
	var text string
	if err := json.Unmarshal(e.Result, &text); err != nil {
		return ""
	}
	return text
}

func (c *Client) apiURL(module, action string, params url.Values) string {
	q := url.Values{}
	q.Set("chainid", strconv.FormatUint(c.chainID, 10))
	q.Set("module", module)
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	return c.baseURL + "?" + q.Encode()
}

func (c *Client) get(ctx context.Context, rawURL string) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return envelope{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return envelope{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("couldn't unmarshal %s: %w", truncate(body), err)
	}
	return env, nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
