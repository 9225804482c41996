package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapScope/internal/model"
	"swapScope/internal/scheduler"
)

// FeeTiers lists the V3 fee tiers in search order.
var FeeTiers = []uint32{100, 500, 3000, 10000}

// SymbolCache caches resolved token symbols by address.
type SymbolCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.ResolvedTokenMeta
}

func NewSymbolCache() *SymbolCache {
	return &SymbolCache{data: make(map[common.Address]model.ResolvedTokenMeta)}
}

func (c *SymbolCache) Get(address common.Address) (model.ResolvedTokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *SymbolCache) Set(address common.Address, meta model.ResolvedTokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

type poolKey struct {
	a, b  common.Address
	dex   model.DexVariant
	start int
}

// PoolCache caches found pool resolutions per token pair, variant and
// starting fee tier.
type PoolCache struct {
	mu   sync.RWMutex
	data map[poolKey]model.PoolResolution
}

func NewPoolCache() *PoolCache {
	return &PoolCache{data: make(map[poolKey]model.PoolResolution)}
}

func (c *PoolCache) get(key poolKey) (model.PoolResolution, bool) {
	c.mu.RLock()
	res, ok := c.data[key]
	c.mu.RUnlock()
	return res, ok
}

func (c *PoolCache) set(key poolKey, res model.PoolResolution) {
	c.mu.Lock()
	c.data[key] = res
	c.mu.Unlock()
}

// ResolverConfig overrides the factory addresses and fee tiers. Zero values
// select the mainnet defaults.
type ResolverConfig struct {
	V2Factory common.Address
	V3Factory common.Address
	FeeTiers  []uint32
}

// PoolRequest asks for the pool serving one swap leg.
type PoolRequest struct {
	TokenA   common.Address
	TokenB   common.Address
	Dex      model.DexVariant
	KnownFee *uint32
}

// MetadataResolver looks up token symbols and pool addresses. Lookups never
// fail; unresolved values become model.Placeholder.
type MetadataResolver struct {
	caller    ContractCaller
	v2Factory common.Address
	v3Factory common.Address
	tiers     []uint32
	symbols   *SymbolCache
	pools     *PoolCache
	logger    *zap.Logger
}

func NewMetadataResolver(caller ContractCaller, cfg ResolverConfig, logger *zap.Logger) (*MetadataResolver, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	if _, err := erc20ABIStringInstance(); err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	if _, err := erc20ABIBytes32Instance(); err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	if _, err := V2FactoryABI(); err != nil {
		return nil, fmt.Errorf("parse v2 factory abi: %w", err)
	}
	if _, err := V3FactoryABI(); err != nil {
		return nil, fmt.Errorf("parse v3 factory abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.V2Factory == (common.Address{}) {
		cfg.V2Factory = V2FactoryAddress
	}
	if cfg.V3Factory == (common.Address{}) {
		cfg.V3Factory = V3FactoryAddress
	}
	if len(cfg.FeeTiers) == 0 {
		cfg.FeeTiers = FeeTiers
	}
	return &MetadataResolver{
		caller:    caller,
		v2Factory: cfg.V2Factory,
		v3Factory: cfg.V3Factory,
		tiers:     append([]uint32(nil), cfg.FeeTiers...),
		symbols:   NewSymbolCache(),
		pools:     NewPoolCache(),
		logger:    logger.With(zap.String("component", "metadata")),
	}, nil
}

// ResolveSymbol returns the token's ERC20 symbol, or the placeholder with
// Defaulted set when the call fails.
func (r *MetadataResolver) ResolveSymbol(ctx context.Context, token common.Address) model.ResolvedTokenMeta {
	if meta, ok := r.symbols.Get(token); ok {
		return meta
	}
	symbol, err := r.fetchSymbol(ctx, token)
	return r.symbolResult(token, symbol, err)
}

// ResolveSymbols resolves every distinct token through the scheduler. The
// error is non-nil only when ctx ends before all lookups ran.
func (r *MetadataResolver) ResolveSymbols(ctx context.Context, s *scheduler.Scheduler, tokens []common.Address) (map[common.Address]model.ResolvedTokenMeta, error) {
	out := make(map[common.Address]model.ResolvedTokenMeta, len(tokens))
	var pending []common.Address
	for _, token := range tokens {
		if _, seen := out[token]; seen {
			continue
		}
		if meta, ok := r.symbols.Get(token); ok {
			out[token] = meta
			continue
		}
		out[token] = model.ResolvedTokenMeta{}
		pending = append(pending, token)
	}
	if len(pending) == 0 {
		return out, nil
	}

	ops := make([]scheduler.Op[string], len(pending))
	for i, token := range pending {
		token := token
		ops[i] = func(ctx context.Context) (string, error) {
			return r.fetchSymbol(ctx, token)
		}
	}
	results, err := scheduler.Run(ctx, s, ops)
	if err != nil {
		return nil, err
	}
	for i, token := range pending {
		out[token] = r.symbolResult(token, results[i].Value, results[i].Err)
	}
	return out, nil
}

func (r *MetadataResolver) symbolResult(token common.Address, symbol string, err error) model.ResolvedTokenMeta {
	if err != nil {
		r.logger.Debug("symbol lookup failed", zap.String("token", token.Hex()), zap.Error(err))
		return model.ResolvedTokenMeta{Address: token, Symbol: model.Placeholder, Defaulted: true}
	}
	meta := model.ResolvedTokenMeta{Address: token, Symbol: symbol}
	r.symbols.Set(token, meta)
	return meta
}

func (r *MetadataResolver) fetchSymbol(ctx context.Context, token common.Address) (string, error) {
	stringABI, _ := erc20ABIStringInstance()
	bytes32ABI, _ := erc20ABIBytes32Instance()

	data, err := stringABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("pack symbol: %w", err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("call symbol: %w: %w", model.ErrMetadataUnavailable, err)
	}

	var symbol string
	if values, err := stringABI.Unpack("symbol", resp); err == nil && len(values) == 1 {
		symbol, _ = values[0].(string)
	} else if values, err := bytes32ABI.Unpack("symbol", resp); err == nil && len(values) == 1 {
		symbol, _ = bytes32ToString(values[0])
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", fmt.Errorf("unpack symbol: %w", model.ErrMetadataUnavailable)
	}
	return symbol, nil
}

// ResolvePoolAddress finds the pool for one pair. V2 asks the factory once;
// V3 walks the fee tiers from knownFee (or the first tier) until a pool exists.
func (r *MetadataResolver) ResolvePoolAddress(ctx context.Context, a, b common.Address, dex model.DexVariant, knownFee *uint32) model.PoolResolution {
	key := poolKey{a: a, b: b, dex: dex, start: r.tierIndex(knownFee)}
	if res, ok := r.pools.get(key); ok {
		return res
	}

	if dex != model.DexV3 {
		addr, err := r.lookupPool(ctx, a, b, dex, 0)
		return r.poolResult(key, addr, nil, err)
	}
	for i := key.start; i < len(r.tiers); i++ {
		fee := r.tiers[i]
		addr, err := r.lookupPool(ctx, a, b, dex, fee)
		if err != nil || addr != (common.Address{}) {
			return r.poolResult(key, addr, model.FeePtr(fee), err)
		}
	}
	return r.poolResult(key, common.Address{}, nil, nil)
}

// ResolvePools resolves every request through the scheduler. The fee-tier
// search runs in rounds: each round issues one lookup per unfinished search,
// and searches that found nothing move to the next tier. Identical requests
// share one search. Results follow request order.
func (r *MetadataResolver) ResolvePools(ctx context.Context, s *scheduler.Scheduler, reqs []PoolRequest) ([]model.PoolResolution, error) {
	type search struct {
		key     poolKey
		tier    int
		res     model.PoolResolution
		indices []int
	}

	out := make([]model.PoolResolution, len(reqs))
	searches := make(map[poolKey]*search)
	var pending []*search
	for i, req := range reqs {
		key := poolKey{a: req.TokenA, b: req.TokenB, dex: req.Dex, start: r.tierIndex(req.KnownFee)}
		if res, ok := r.pools.get(key); ok {
			out[i] = res
			continue
		}
		if sr, ok := searches[key]; ok {
			sr.indices = append(sr.indices, i)
			continue
		}
		sr := &search{key: key, tier: key.start, indices: []int{i}}
		searches[key] = sr
		pending = append(pending, sr)
	}
	all := append([]*search(nil), pending...)

	for round := 0; len(pending) > 0; round++ {
		ops := make([]scheduler.Op[common.Address], len(pending))
		for i, sr := range pending {
			sr := sr
			fee := r.searchFee(sr.key.dex, sr.tier)
			ops[i] = func(ctx context.Context) (common.Address, error) {
				return r.lookupPool(ctx, sr.key.a, sr.key.b, sr.key.dex, fee)
			}
		}
		results, err := scheduler.Run(ctx, s, ops)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("pool lookup round", zap.Int("round", round), zap.Int("lookups", len(ops)))

		next := pending[:0]
		for i, sr := range pending {
			addr, lookupErr := results[i].Value, results[i].Err
			exhausted := sr.key.dex != model.DexV3 || sr.tier+1 >= len(r.tiers)
			if lookupErr == nil && addr == (common.Address{}) && !exhausted {
				sr.tier++
				next = append(next, sr)
				continue
			}
			var fee *uint32
			if sr.key.dex == model.DexV3 && lookupErr == nil && addr != (common.Address{}) {
				fee = model.FeePtr(r.tiers[sr.tier])
			}
			sr.res = r.poolResult(sr.key, addr, fee, lookupErr)
		}
		pending = next
	}

	for _, sr := range all {
		for _, idx := range sr.indices {
			out[idx] = sr.res
		}
	}
	return out, nil
}

func (r *MetadataResolver) poolResult(key poolKey, addr common.Address, fee *uint32, err error) model.PoolResolution {
	res := model.PoolResolution{TokenA: key.a, TokenB: key.b, Dex: key.dex, PoolAddress: model.Placeholder}
	if err != nil {
		r.logger.Debug("pool lookup failed",
			zap.String("token_a", key.a.Hex()),
			zap.String("token_b", key.b.Hex()),
			zap.String("dex", string(key.dex)),
			zap.Error(err),
		)
		return res
	}
	if addr == (common.Address{}) {
		return res
	}
	res.PoolAddress = addr.Hex()
	res.FeeUsed = fee
	r.pools.set(key, res)
	return res
}

func (r *MetadataResolver) tierIndex(knownFee *uint32) int {
	if knownFee == nil {
		return 0
	}
	for i, tier := range r.tiers {
		if tier == *knownFee {
			return i
		}
	}
	return 0
}

func (r *MetadataResolver) searchFee(dex model.DexVariant, tier int) uint32 {
	if dex != model.DexV3 {
		return 0
	}
	return r.tiers[tier]
}

// lookupPool performs one factory call. A zero address means no pool exists.
func (r *MetadataResolver) lookupPool(ctx context.Context, a, b common.Address, dex model.DexVariant, fee uint32) (common.Address, error) {
	var (
		parsed  abi.ABI
		factory common.Address
		method  string
		args    []interface{}
	)
	switch dex {
	case model.DexV2:
		parsed, _ = V2FactoryABI()
		factory, method, args = r.v2Factory, "getPair", []interface{}{a, b}
	case model.DexV3:
		parsed, _ = V3FactoryABI()
		factory, method, args = r.v3Factory, "getPool", []interface{}{a, b, new(big.Int).SetUint64(uint64(fee))}
	default:
		return common.Address{}, fmt.Errorf("unknown dex variant %q", dex)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call %s: %w: %w", method, model.ErrMetadataUnavailable, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(values))
	}
	return asAddress(values[0])
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
