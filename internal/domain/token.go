package domain

// TokenStatus is the lifecycle state of a registered token.
type TokenStatus string

// Token lifecycle states. RUG and IGNORED are external annotations: the
// lifecycle engine never sets or clears them and excludes them from its
// own transitions.
const (
	StatusTradingActive TokenStatus = "TRADING_ACTIVE"
	StatusMigrated      TokenStatus = "MIGRATED"
	StatusDead          TokenStatus = "DEAD"
	StatusRug           TokenStatus = "RUG"
	StatusIgnored       TokenStatus = "IGNORED"
)

// TokenRegistry is one row per launched token. Created on the first
// GENESIS event (or first-seen trade for an imported token), mutated by
// the lifecycle engine and enrichment, never deleted.
type TokenRegistry struct {
	TokenAddress string
	Name         string
	Symbol       string
	Creator      string

	TotalSupply float64 // fixed at registry creation, never re-read on-chain

	LaunchTxHash string
	LaunchTime   int64

	BaseSymbol  string // consideration asset at launch ("BNB", "USDT", ...)
	BaseAddress string // empty for the native asset
	BaseStable  bool

	Status      TokenStatus
	IsQualified bool
	QualifiedAt int64
	MigratedAt  int64

	// Enrichable metadata, filled after qualification.
	Image    string
	Website  string
	Twitter  string
	Telegram string

	CreatedAt int64
	UpdatedAt int64
}

// TokenMetadata is the enrichment payload fetched from the launch
// platform's HTTP API for qualified tokens.
type TokenMetadata struct {
	Image    string
	Website  string
	Twitter  string
	Telegram string
}

// Empty reports whether enrichment fetched nothing usable.
func (m *TokenMetadata) Empty() bool {
	return m == nil || (m.Image == "" && m.Website == "" && m.Twitter == "" && m.Telegram == "")
}
