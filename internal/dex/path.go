package dex

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	addressLength = common.AddressLength
	feeLength     = 3
	hopStride     = addressLength + feeLength
)

// ErrMalformedPath is returned when a packed path length does not follow the
// address(20) | fee(3) | address(20) ... layout.
var ErrMalformedPath = errors.New("malformed packed path")

// PackedPath is a decoded V3 route. Fees[i] is the fee tier between Tokens[i]
// and Tokens[i+1].
type PackedPath struct {
	Tokens []common.Address
	Fees   []uint32
}

// Pair is an ordered token pair taken from a route.
type Pair struct {
	TokenIn  common.Address
	TokenOut common.Address
}

// PairsFromPath returns consecutive pairs: [A,B,C] -> [(A,B),(B,C)].
func PairsFromPath(path []common.Address) []Pair {
	if len(path) < 2 {
		return []Pair{}
	}
	pairs := make([]Pair, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		pairs = append(pairs, Pair{TokenIn: path[i], TokenOut: path[i+1]})
	}
	return pairs
}

// DecodePackedV3Path walks the packed route in 23-byte strides and keeps the
// fee bytes between addresses. A malformed length yields an empty path.
func DecodePackedV3Path(blob []byte) (PackedPath, error) {
	if len(blob) < addressLength || (len(blob)-addressLength)%hopStride != 0 {
		return PackedPath{}, fmt.Errorf("%w: length %d", ErrMalformedPath, len(blob))
	}

	hops := (len(blob) - addressLength) / hopStride
	path := PackedPath{
		Tokens: make([]common.Address, 0, hops+1),
		Fees:   make([]uint32, 0, hops),
	}

	offset := 0
	for ; len(blob)-offset >= hopStride; offset += hopStride {
		path.Tokens = append(path.Tokens, common.BytesToAddress(blob[offset:offset+addressLength]))
		path.Fees = append(path.Fees, uint24(blob[offset+addressLength:offset+hopStride]))
	}
	path.Tokens = append(path.Tokens, common.BytesToAddress(blob[offset:offset+addressLength]))

	return path, nil
}

// EncodePackedV3Path is the inverse of DecodePackedV3Path. len(fees) must be
// len(tokens)-1.
func EncodePackedV3Path(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) == 0 || len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: %d tokens, %d fees", ErrMalformedPath, len(tokens), len(fees))
	}
	out := make([]byte, 0, len(fees)*hopStride+addressLength)
	for i, fee := range fees {
		if fee >= 1<<24 {
			return nil, fmt.Errorf("fee %d overflows uint24", fee)
		}
		out = append(out, tokens[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	out = append(out, tokens[len(tokens)-1].Bytes()...)
	return out, nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
