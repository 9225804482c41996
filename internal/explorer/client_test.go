package explorer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"swapScope/internal/model"
)

const wallet = "0x1111111111111111111111111111111111111111"

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/api"
	cfg.HTTPClient = srv.Client()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return NewClient(cfg, nil)
}

func TestFetchHistory(t *testing.T) {
	var query atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[
			{"blockNumber":"100","timeStamp":"1700000000","hash":"0xa","from":"0x1","to":"0x7a250d5630b4cf539739df2c5dacb4c659f2488d","input":"0x38ed1739","isError":"0","txreceipt_status":"1"},
			{"blockNumber":"101","timeStamp":"1700000012","hash":"0xb","from":"0x1","to":"0x2","input":"0x","isError":"1","txreceipt_status":"0"},
			{"blockNumber":"bad","timeStamp":"1700000013","hash":"0xc","from":"0x1","to":"0x2","input":"0x","isError":"0","txreceipt_status":"1"}
		]}`)
	}, Config{APIKey: "key", MaxTransactions: 50})

	txs, err := client.FetchHistory(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "0xa", txs[0].Hash)
	assert.Equal(t, uint64(1700000000), txs[0].Timestamp)
	assert.Equal(t, uint64(100), txs[0].BlockNumber)
	assert.False(t, txs[0].Failed)
	assert.True(t, txs[1].Failed)

	q := query.Load().(url.Values)
	assert.Equal(t, []string{"account"}, q["module"])
	assert.Equal(t, []string{"txlist"}, q["action"])
	assert.Equal(t, []string{"asc"}, q["sort"])
	assert.Equal(t, []string{"50"}, q["offset"])
	assert.Equal(t, []string{"1"}, q["chainid"])
	assert.Equal(t, []string{"key"}, q["apikey"])
}

func TestFetchHistoryCapsResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			items = append(items, fmt.Sprintf(`{"blockNumber":"%d","timeStamp":"%d","hash":"0x%d","isError":"0","txreceipt_status":"1"}`, i, 1700000000+i, i))
		}
		fmt.Fprintf(w, `{"status":"1","message":"OK","result":[%s]}`, strings.Join(items, ","))
	}, Config{MaxTransactions: 3})

	txs, err := client.FetchHistory(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "0x0", txs[0].Hash)
	assert.Equal(t, "0x2", txs[2].Hash)
}

func TestFetchHistoryEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	}, Config{})

	txs, err := client.FetchHistory(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestFetchHistoryRetriesThenFails(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
	}, Config{MaxRetries: 2})

	_, err := client.FetchHistory(context.Background(), wallet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrFetch))
	assert.Contains(t, err.Error(), "Max rate limit reached")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchHistoryRetryRecovers(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	}, Config{MaxRetries: 1})

	_, err := client.FetchHistory(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchHistoryRetriesWaitForLimiter(t *testing.T) {
	const window = 100 * time.Millisecond
	var mu sync.Mutex
	var calls []time.Time
	limiter := rate.NewLimiter(rate.Every(window), 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
	}, Config{MaxRetries: 2, Limiter: limiter})

	// The caller's scheduler pays for the first attempt.
	require.True(t, limiter.Allow())
	_, err := client.FetchHistory(context.Background(), wallet)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 3)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), window-10*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].Sub(calls[1]), window-10*time.Millisecond)
}

func TestFetchHistoryMalformedResultNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status":"1","message":"OK","result":{"unexpected":true}}`)
	}, Config{MaxRetries: 3})

	_, err := client.FetchHistory(context.Background(), wallet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrFetch))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchHistoryInvalidWallet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}, Config{})

	_, err := client.FetchHistory(context.Background(), "not-a-wallet")
	assert.True(t, errors.Is(err, model.ErrFetch))
}

func TestCallContract(t *testing.T) {
	target := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "proxy", q.Get("module"))
		assert.Equal(t, "eth_call", q.Get("action"))
		assert.True(t, strings.EqualFold(target.Hex(), q.Get("to")))
		assert.Equal(t, "0x95d89b41", q.Get("data"))
		assert.Equal(t, "0x10", q.Get("tag"))
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x0102"}`)
	}, Config{})

	out, err := client.CallContract(context.Background(), ethereum.CallMsg{To: &target, Data: []byte{0x95, 0xd8, 0x9b, 0x41}}, big.NewInt(16))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out)
}

func TestCallContractErrors(t *testing.T) {
	target := common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	bodies := []string{
		`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`,
		`{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`,
		`{"jsonrpc":"2.0","id":1,"result":"zz"}`,
	}
	for _, body := range bodies {
		body := body
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}, Config{})
		_, err := client.CallContract(context.Background(), ethereum.CallMsg{To: &target}, nil)
		assert.Error(t, err, body)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, Config{})
	_, err := client.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	assert.Error(t, err)
}
