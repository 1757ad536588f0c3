package storage

import (
	"context"

	"meme-token-ledger/internal/domain"
)

// TradeStats summarizes all TRADE events of a token for qualification.
type TradeStats struct {
	Count        int64
	PeakMarketCap float64
}

// EventStore is the canonical event ledger: append-only, deduplicated on
// (tx_hash, kind, side, wallet).
type EventStore interface {
	// Append inserts an event. Returns (false, nil) when the uniqueness
	// key already exists: re-ingesting a seen event is a no-op, not an
	// error.
	Append(ctx context.Context, e *domain.CanonicalEvent) (inserted bool, err error)

	// QueryEvents returns all events for a token ordered by timestamp
	// ascending (insertion order within a bucket).
	QueryEvents(ctx context.Context, tokenAddress string) ([]*domain.CanonicalEvent, error)

	// AggregateTradeStats returns the TRADE event count and peak observed
	// market cap for a token.
	AggregateTradeStats(ctx context.Context, tokenAddress string) (TradeStats, error)

	// CountRecentTrades counts TRADE events at or after sinceTimestamp.
	CountRecentTrades(ctx context.Context, tokenAddress string, sinceTimestamp int64) (int64, error)

	// LastMarketCap returns the market cap of the most recent TRADE event,
	// or (0, false) when the token has none.
	LastMarketCap(ctx context.Context, tokenAddress string) (float64, bool, error)

	// HolderBalances projects the signed per-wallet balance sums from the
	// ledger. Only wallets with positive balance are returned.
	HolderBalances(ctx context.Context, tokenAddress string) ([]*domain.HolderBalance, error)

	// HolderCount counts wallets with positive projected balance.
	HolderCount(ctx context.Context, tokenAddress string) (int64, error)
}

// RegistryStore holds one row per token.
type RegistryStore interface {
	// CreateIfAbsent inserts a registry row unless the token already
	// exists. Returns true when a row was created.
	CreateIfAbsent(ctx context.Context, t *domain.TokenRegistry) (bool, error)

	// GetByAddress returns a token row. Returns ErrNotFound if absent.
	GetByAddress(ctx context.Context, tokenAddress string) (*domain.TokenRegistry, error)

	// MarkMigrated transitions a token to MIGRATED exactly once.
	// Re-triggering is a no-op; returns true only on the first transition.
	MarkMigrated(ctx context.Context, tokenAddress string, migratedAt int64) (bool, error)

	// MarkQualified sets the monotonic qualification flag. Returns true
	// only when the flag flipped from false to true.
	MarkQualified(ctx context.Context, tokenAddress string, qualifiedAt int64) (bool, error)

	// SetStatus applies an external status override (RUG, IGNORED, or a
	// manual revival). The lifecycle engine never calls this.
	SetStatus(ctx context.Context, tokenAddress string, status domain.TokenStatus, updatedAt int64) error

	// UpdateEnrichment merges non-empty metadata fields into the row.
	UpdateEnrichment(ctx context.Context, tokenAddress string, meta *domain.TokenMetadata, updatedAt int64) error

	// ListAddresses returns every registered token address, ordered.
	ListAddresses(ctx context.Context) ([]string, error)

	// UnqualifiedCandidates lists tokens eligible for the qualification
	// sweep: TRADING_ACTIVE or MIGRATED, not yet qualified.
	UnqualifiedCandidates(ctx context.Context) ([]string, error)

	// SweepDead marks every eligible token DEAD in one set-based pass:
	// not already DEAD/RUG/IGNORED, zero TRADE events at or after
	// sinceTimestamp, and last known market cap (absent counts as zero)
	// below maxMarketCap. Returns the addresses transitioned.
	SweepDead(ctx context.Context, sinceTimestamp int64, maxMarketCap float64, sweptAt int64) ([]string, error)
}

// CandleStore persists derived OHLCV buckets. Candles are rebuildable
// from the EventStore at any time; Upsert is last-write-wins on the
// (token, timeframe, bucket) key.
type CandleStore interface {
	Upsert(ctx context.Context, c *domain.Candle) error

	// Get returns one candle. Returns ErrNotFound if absent.
	Get(ctx context.Context, tokenAddress, timeframe string, bucketStart int64) (*domain.Candle, error)

	// Last returns the latest candle for a token/timeframe, or ErrNotFound.
	Last(ctx context.Context, tokenAddress, timeframe string) (*domain.Candle, error)

	// Range returns candles with bucketStart in [from, to], ascending.
	Range(ctx context.Context, tokenAddress, timeframe string, from, to int64) ([]*domain.Candle, error)

	// DeleteToken removes all candles of one token, used before a full
	// replay rebuild.
	DeleteToken(ctx context.Context, tokenAddress string) error
}
