// Package classifier turns raw transactions and receipts into canonical
// ledger events: GENESIS allocations, BUY/SELL trades, and LIQUIDITY
// migrations, each priced through the resolver's tier chain.
package classifier

import "meme-token-ledger/internal/domain"

// Manager method selectors on BSC mainnet.
const (
	DefaultCreateTokenSelector  = "0x519ebb10"
	DefaultAddLiquiditySelector = "0xe3412e3d"
)

// Config carries the fixed platform parameters. Injected at construction
// so tests can run against alternate fixtures.
type Config struct {
	// PlatformFee is the manager's trading fee fraction, applied when
	// adjusting an oracle raw price to the executed price.
	PlatformFee float64

	// TotalSupply is the fixed per-token supply used for market caps.
	// Never re-read on-chain.
	TotalSupply float64

	// TokenDecimals is the launchpad token precision.
	TokenDecimals int

	// NativeSymbol labels native-value consideration on emitted events.
	NativeSymbol string

	// NativeSpendFactor calibrates native spend amounts against the
	// manager's fee schedule. 1.0 means no adjustment; integrators set
	// it from the actual fee schedule of the manager contract.
	NativeSpendFactor float64

	CreateTokenSelector  string
	AddLiquiditySelector string

	Whitelist domain.PairWhitelist
}

// DefaultConfig returns the production parameters of the BSC launchpad.
func DefaultConfig() Config {
	return Config{
		PlatformFee:          0.01,
		TotalSupply:          1e9,
		TokenDecimals:        18,
		NativeSymbol:         "BNB",
		NativeSpendFactor:    1.0,
		CreateTokenSelector:  DefaultCreateTokenSelector,
		AddLiquiditySelector: DefaultAddLiquiditySelector,
		Whitelist:            domain.DefaultPairWhitelist(),
	}
}
