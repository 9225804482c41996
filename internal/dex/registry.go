package dex

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swapScope/internal/model"
)

var routerTable = []model.RouterDescriptor{
	{Address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", Variant: model.RouterV2, Name: "Uniswap V2 Router 02"},
	{Address: "0xE592427A0AEce92De3Edee1F18E0157C05861564", Variant: model.RouterV3, Name: "Uniswap V3 SwapRouter"},
	{Address: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD", Variant: model.RouterUniversalR1, Name: "Uniswap Universal Router"},
	{Address: "0xEf1c6E67703c7BD7107eed8303Fbe6EC2554BF6B", Variant: model.RouterUniversalR2, Name: "Uniswap Universal Router (legacy)"},
}

var (
	// V2FactoryAddress resolves pairs for V2 legs.
	V2FactoryAddress = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	// V3FactoryAddress resolves pools for V3 legs.
	V3FactoryAddress = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

// Registry maps router addresses to their descriptors.
type Registry struct {
	byAddress map[string]model.RouterDescriptor
}

// NewRegistry builds a registry over the given descriptors. Addresses are
// lowercased; a duplicate address keeps the first descriptor.
func NewRegistry(descriptors []model.RouterDescriptor) *Registry {
	byAddress := make(map[string]model.RouterDescriptor, len(descriptors))
	for _, desc := range descriptors {
		key := strings.ToLower(strings.TrimSpace(desc.Address))
		if key == "" {
			continue
		}
		if _, ok := byAddress[key]; ok {
			continue
		}
		desc.Address = key
		byAddress[key] = desc
	}
	return &Registry{byAddress: byAddress}
}

// DefaultRegistry returns the mainnet Uniswap router table.
func DefaultRegistry() *Registry {
	return NewRegistry(routerTable)
}

// Classify looks up a router by address, ignoring case.
func (r *Registry) Classify(address string) (model.RouterDescriptor, bool) {
	if r == nil || address == "" {
		return model.RouterDescriptor{}, false
	}
	desc, ok := r.byAddress[strings.ToLower(strings.TrimSpace(address))]
	return desc, ok
}
