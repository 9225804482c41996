package model

// RouterVariant identifies the calling convention of a router contract.
type RouterVariant string

const (
	RouterV2          RouterVariant = "uniswap_v2"
	RouterV3          RouterVariant = "uniswap_v3"
	RouterUniversalR1 RouterVariant = "uniswap_universal"
	RouterUniversalR2 RouterVariant = "uniswap_universal_2"
)

// IsUniversal reports whether the variant uses the command-multiplexed execute format.
func (v RouterVariant) IsUniversal() bool {
	return v == RouterUniversalR1 || v == RouterUniversalR2
}

// DexVariant is the pool family a swap leg was routed through.
type DexVariant string

const (
	DexV2 DexVariant = "Uniswap v2"
	DexV3 DexVariant = "Uniswap v3"
)

func (d DexVariant) String() string {
	return string(d)
}

// RouterDescriptor is a static registry entry for a known router contract.
type RouterDescriptor struct {
	Address string        `json:"address"`
	Variant RouterVariant `json:"variant"`
	Name    string        `json:"name"`
}
