package dex

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"swapScope/internal/model"
)

// Universal router opcodes. Bit 0x80 of a command byte lets the command
// revert without failing the call; it does not change the command type.
const (
	CommandV3SwapExactIn byte = 0x00
	CommandV2SwapExactIn byte = 0x08

	commandAllowRevert byte = 0x80
)

// ErrUnsupportedMethod marks a known router call that is not a swap the
// decoder understands.
var ErrUnsupportedMethod = errors.New("unsupported router method")

// SwapDecoder decodes router call data into swap legs.
type SwapDecoder struct {
	registry     *Registry
	v2ABI        abi.ABI
	v3ABI        abi.ABI
	universalABI abi.ABI
	v2Inputs     abi.Arguments
	v3Inputs     abi.Arguments
	logger       *zap.Logger
}

type hop struct {
	tokenIn  common.Address
	tokenOut common.Address
	dex      model.DexVariant
	fee      *uint32
}

// NewSwapDecoder builds a decoder over the registry's routers.
func NewSwapDecoder(registry *Registry, logger *zap.Logger) (*SwapDecoder, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v2ABI, err := V2RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse v2 router abi: %w", err)
	}
	v3ABI, err := V3RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse v3 router abi: %w", err)
	}
	universalABI, err := UniversalRouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse universal router abi: %w", err)
	}
	v2Inputs, v3Inputs, err := commandInputArgs()
	if err != nil {
		return nil, fmt.Errorf("build command layouts: %w", err)
	}

	return &SwapDecoder{
		registry:     registry,
		v2ABI:        v2ABI,
		v3ABI:        v3ABI,
		universalABI: universalABI,
		v2Inputs:     v2Inputs,
		v3Inputs:     v3Inputs,
		logger:       logger.With(zap.String("component", "swap-decoder")),
	}, nil
}

// Decode returns the swap legs of tx. Failures are logged and yield no legs.
func (d *SwapDecoder) Decode(tx model.RawTransaction) []model.SwapLeg {
	legs, err := d.DecodeDetailed(tx)
	if err != nil {
		if !errors.Is(err, model.ErrUnknownContract) {
			d.logger.Debug("skip transaction", zap.String("tx", tx.Hash), zap.String("to", tx.To), zap.Error(err))
		}
		return []model.SwapLeg{}
	}
	return legs
}

// DecodeDetailed is Decode with the failure reason exposed.
func (d *SwapDecoder) DecodeDetailed(tx model.RawTransaction) ([]model.SwapLeg, error) {
	desc, ok := d.registry.Classify(tx.To)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownContract, tx.To)
	}

	data, err := decodeInput(tx.Input)
	if err != nil {
		return nil, err
	}

	var hops []hop
	switch {
	case desc.Variant == model.RouterV2:
		hops, err = d.decodeV2(data)
	case desc.Variant == model.RouterV3:
		hops, err = d.decodeV3(data)
	case desc.Variant.IsUniversal():
		hops, err = d.decodeUniversal(data)
	default:
		return nil, fmt.Errorf("%w: variant %s", model.ErrUnknownContract, desc.Variant)
	}
	if err != nil {
		return nil, err
	}

	return buildLegs(tx, hops), nil
}

func decodeInput(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
		input = "0x" + input
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedCalldata, err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing selector", model.ErrMalformedCalldata)
	}
	return data, nil
}

func (d *SwapDecoder) decodeV2(data []byte) ([]hop, error) {
	method, values, err := unpackCall(d.v2ABI, data)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(strings.ToLower(method.RawName), "swap") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method.RawName)
	}

	raw, err := argumentByName(method.Inputs, values, "path")
	if err != nil {
		return nil, err
	}
	path, ok := raw.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: path type %T", model.ErrMalformedCalldata, raw)
	}

	return hopsFromPairs(PairsFromPath(path), model.DexV2, nil), nil
}

func (d *SwapDecoder) decodeV3(data []byte) ([]hop, error) {
	method, values, err := unpackCall(d.v3ABI, data)
	if err != nil {
		return nil, err
	}
	if method.RawName != "exactInputSingle" && method.RawName != "exactOutputSingle" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method.RawName)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: unexpected %s values: %d", model.ErrMalformedCalldata, method.RawName, len(values))
	}

	tokenInRaw, err := tupleField(values[0], "TokenIn")
	if err != nil {
		return nil, err
	}
	tokenOutRaw, err := tupleField(values[0], "TokenOut")
	if err != nil {
		return nil, err
	}
	feeRaw, err := tupleField(values[0], "Fee")
	if err != nil {
		return nil, err
	}

	tokenIn, err := asAddress(tokenInRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenIn: %v", model.ErrMalformedCalldata, err)
	}
	tokenOut, err := asAddress(tokenOutRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenOut: %v", model.ErrMalformedCalldata, err)
	}
	feeInt, err := asBigInt(feeRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: fee: %v", model.ErrMalformedCalldata, err)
	}

	return []hop{{
		tokenIn:  tokenIn,
		tokenOut: tokenOut,
		dex:      model.DexV3,
		fee:      model.FeePtr(uint32(feeInt.Uint64())),
	}}, nil
}

func (d *SwapDecoder) decodeUniversal(data []byte) ([]hop, error) {
	method, values, err := unpackCall(d.universalABI, data)
	if err != nil {
		return nil, err
	}
	if method.RawName != "execute" || len(values) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method.RawName)
	}

	commands, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: commands type %T", model.ErrMalformedCalldata, values[0])
	}
	inputs, ok := values[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("%w: inputs type %T", model.ErrMalformedCalldata, values[1])
	}
	if len(inputs) < len(commands) {
		return nil, fmt.Errorf("%w: %d commands, %d inputs", model.ErrMalformedCalldata, len(commands), len(inputs))
	}

	hops := make([]hop, 0, len(commands))
	for i, command := range commands {
		switch command &^ commandAllowRevert {
		case CommandV3SwapExactIn:
			decoded, err := d.decodeV3Command(inputs[i])
			if err != nil {
				return nil, fmt.Errorf("command %d: %w", i, err)
			}
			hops = append(hops, decoded...)
		case CommandV2SwapExactIn:
			decoded, err := d.decodeV2Command(inputs[i])
			if err != nil {
				return nil, fmt.Errorf("command %d: %w", i, err)
			}
			hops = append(hops, decoded...)
		}
	}
	return hops, nil
}

func (d *SwapDecoder) decodeV2Command(input []byte) ([]hop, error) {
	values, err := d.v2Inputs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack v2 swap: %v", model.ErrMalformedCalldata, err)
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("%w: unexpected v2 swap values: %d", model.ErrMalformedCalldata, len(values))
	}
	path, ok := values[3].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: path type %T", model.ErrMalformedCalldata, values[3])
	}
	return hopsFromPairs(PairsFromPath(path), model.DexV2, nil), nil
}

func (d *SwapDecoder) decodeV3Command(input []byte) ([]hop, error) {
	values, err := d.v3Inputs.Unpack(input)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack v3 swap: %v", model.ErrMalformedCalldata, err)
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("%w: unexpected v3 swap values: %d", model.ErrMalformedCalldata, len(values))
	}
	packed, ok := values[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: path type %T", model.ErrMalformedCalldata, values[3])
	}
	path, err := DecodePackedV3Path(packed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedCalldata, err)
	}
	return hopsFromPairs(PairsFromPath(path.Tokens), model.DexV3, path.Fees), nil
}

func hopsFromPairs(pairs []Pair, dex model.DexVariant, fees []uint32) []hop {
	hops := make([]hop, 0, len(pairs))
	for i, pair := range pairs {
		h := hop{tokenIn: pair.TokenIn, tokenOut: pair.TokenOut, dex: dex}
		if i < len(fees) {
			h.fee = model.FeePtr(fees[i])
		}
		hops = append(hops, h)
	}
	return hops
}

func buildLegs(tx model.RawTransaction, hops []hop) []model.SwapLeg {
	legs := make([]model.SwapLeg, 0, len(hops))
	for _, h := range hops {
		if h.tokenIn == h.tokenOut {
			continue
		}
		legs = append(legs, model.SwapLeg{
			TxHash:    tx.Hash,
			TokenIn:   h.tokenIn,
			TokenOut:  h.tokenOut,
			Dex:       h.dex,
			PoolFee:   h.fee,
			Timestamp: tx.Timestamp,
		})
	}
	return legs
}

func unpackCall(parsed abi.ABI, data []byte) (*abi.Method, []interface{}, error) {
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: selector %s", ErrUnsupportedMethod, hexutil.Encode(data[:4]))
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unpack %s: %v", model.ErrMalformedCalldata, method.RawName, err)
	}
	return method, values, nil
}

func argumentByName(args abi.Arguments, values []interface{}, name string) (interface{}, error) {
	for i, arg := range args {
		if arg.Name == name {
			if i >= len(values) {
				break
			}
			return values[i], nil
		}
	}
	return nil, fmt.Errorf("%w: missing argument %s", model.ErrMalformedCalldata, name)
}

func tupleField(value interface{}, name string) (interface{}, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expected tuple, got %T", model.ErrMalformedCalldata, value)
	}
	field := rv.FieldByName(name)
	if !field.IsValid() {
		return nil, fmt.Errorf("%w: tuple has no field %s", model.ErrMalformedCalldata, name)
	}
	return field.Interface(), nil
}
