package domain

import "strings"

// PairAsset is one entry of the whitelisted consideration assets the
// manager accepts. Stablecoins are priced 1:1; volatile assets are priced
// via the external price cache.
type PairAsset struct {
	Symbol   string
	Address  string // lowercase hex
	Decimals int
	IsStable bool
}

// PairWhitelist is the fixed, injected set of accepted pair assets,
// keyed by lowercase contract address.
type PairWhitelist map[string]PairAsset

// Lookup returns the whitelist entry for an address, if any.
func (w PairWhitelist) Lookup(address string) (PairAsset, bool) {
	a, ok := w[strings.ToLower(address)]
	return a, ok
}

// VolatileSymbols returns the symbols that require external pricing.
func (w PairWhitelist) VolatileSymbols() []string {
	var out []string
	for _, a := range w {
		if !a.IsStable {
			out = append(out, a.Symbol)
		}
	}
	return out
}

// DefaultPairWhitelist is the production whitelist of the manager contract.
// Tests inject smaller fixtures.
func DefaultPairWhitelist() PairWhitelist {
	assets := []PairAsset{
		{Symbol: "USD1", Address: "0x8d0d000ee44948fc98c9b98a4fa4921476f08b0d", Decimals: 18, IsStable: true},
		{Symbol: "USDT", Address: "0x55d398326f99059ff775485246999027b3197955", Decimals: 18, IsStable: true},
		{Symbol: "USDC", Address: "0x8965349fb649a33a30cbfda057d8ec2c48abe2a2", Decimals: 18, IsStable: true},
		{Symbol: "CAKE", Address: "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", Decimals: 18, IsStable: false},
		{Symbol: "ASTER", Address: "0x000ae314e2a2172a039b26378814c252734f556a", Decimals: 18, IsStable: false},
	}

	w := make(PairWhitelist, len(assets))
	for _, a := range assets {
		w[a.Address] = a
	}
	return w
}
