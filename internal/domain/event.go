package domain

// EventKind discriminates the canonical event variants.
type EventKind string

// Canonical event kinds.
const (
	KindGenesis   EventKind = "GENESIS"
	KindTrade     EventKind = "TRADE"
	KindLiquidity EventKind = "LIQUIDITY"
)

// TradeSide is the direction of a token flow relative to the manager.
type TradeSide string

// Trade sides. LIQUIDITY events carry SideSell: the manager divests
// into the external pair.
const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// PriceSource records which resolver tier priced the event.
type PriceSource string

// Price sources. Native-value pricing counts as PAIR tier.
const (
	PricePair   PriceSource = "PAIR"
	PriceOracle PriceSource = "ORACLE"
)

// CanonicalEvent is the ledger's unit of truth: one classified token flow
// across the manager boundary. Corresponds to the events table in PostgreSQL.
//
// Uniqueness key: (TxHash, Kind, Side, Wallet). A transaction may produce
// two events for the same wallet only if Kind or Side differ. Events are
// immutable once persisted and never deleted.
type CanonicalEvent struct {
	Kind EventKind
	Side TradeSide

	TxHash       string
	TokenAddress string
	Wallet       string
	IsDev        bool // wallet == registry creator

	TokenAmount float64 // token units, native precision normalized

	ConsiderationAmount float64
	ConsiderationSymbol string
	ConsiderationUSD    float64

	PriceUSD     float64 // ConsiderationUSD / TokenAmount
	MarketCapUSD float64 // PriceUSD * fixed total supply
	PriceSource  PriceSource

	IsMigration bool // set only for LIQUIDITY events

	Timestamp int64 // unix seconds, bucketed to candle granularity
}

// Key returns the ledger uniqueness key for deduplication.
func (e *CanonicalEvent) Key() string {
	return e.TxHash + "|" + string(e.Kind) + "|" + string(e.Side) + "|" + e.Wallet
}

// MovesBalance reports whether the event contributes to holder balances.
// GENESIS is the creator's first buy and counts; LIQUIDITY is the manager
// divesting into the pair and does not touch any wallet's balance.
func (e *CanonicalEvent) MovesBalance() bool {
	return e.Kind == KindGenesis || e.Kind == KindTrade
}
