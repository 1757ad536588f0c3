package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ storage.EventStore = (*EventStore)(nil)

// Append inserts an event. The (tx_hash, kind, side, wallet) uniqueness
// constraint absorbs replays: duplicates return (false, nil).
func (s *EventStore) Append(ctx context.Context, e *domain.CanonicalEvent) (bool, error) {
	if e == nil || e.TxHash == "" || e.TokenAddress == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO events (
			tx_hash, kind, side, token_address, wallet, is_dev,
			token_amount, consideration_amount, consideration_symbol, consideration_usd,
			price_usd, market_cap_usd, price_source, is_migration, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tx_hash, kind, side, wallet) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		e.TxHash,
		string(e.Kind),
		string(e.Side),
		e.TokenAddress,
		e.Wallet,
		e.IsDev,
		e.TokenAmount,
		e.ConsiderationAmount,
		e.ConsiderationSymbol,
		e.ConsiderationUSD,
		e.PriceUSD,
		e.MarketCapUSD,
		string(e.PriceSource),
		e.IsMigration,
		e.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// QueryEvents returns all events for a token, ordered by timestamp then
// insertion order.
func (s *EventStore) QueryEvents(ctx context.Context, tokenAddress string) ([]*domain.CanonicalEvent, error) {
	query := `
		SELECT tx_hash, kind, side, token_address, wallet, is_dev,
		       token_amount, consideration_amount, consideration_symbol, consideration_usd,
		       price_usd, market_cap_usd, price_source, is_migration, ts
		FROM events
		WHERE token_address = $1
		ORDER BY ts ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// AggregateTradeStats returns TRADE count and peak market cap.
func (s *EventStore) AggregateTradeStats(ctx context.Context, tokenAddress string) (storage.TradeStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(market_cap_usd), 0)
		FROM events
		WHERE token_address = $1 AND kind = 'TRADE'
	`

	var stats storage.TradeStats
	if err := s.pool.QueryRow(ctx, query, tokenAddress).Scan(&stats.Count, &stats.PeakMarketCap); err != nil {
		return storage.TradeStats{}, fmt.Errorf("aggregate trade stats: %w", err)
	}
	return stats, nil
}

// CountRecentTrades counts TRADE events at or after sinceTimestamp.
func (s *EventStore) CountRecentTrades(ctx context.Context, tokenAddress string, sinceTimestamp int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM events
		WHERE token_address = $1 AND kind = 'TRADE' AND ts >= $2
	`

	var n int64
	if err := s.pool.QueryRow(ctx, query, tokenAddress, sinceTimestamp).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent trades: %w", err)
	}
	return n, nil
}

// LastMarketCap returns the market cap of the latest TRADE event.
func (s *EventStore) LastMarketCap(ctx context.Context, tokenAddress string) (float64, bool, error) {
	query := `
		SELECT market_cap_usd
		FROM events
		WHERE token_address = $1 AND kind = 'TRADE'
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`

	var mcap float64
	err := s.pool.QueryRow(ctx, query, tokenAddress).Scan(&mcap)
	if err != nil {
		if isNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("last market cap: %w", err)
	}
	return mcap, true, nil
}

// HolderBalances projects positive per-wallet balances from the ledger.
// LIQUIDITY events are excluded: the manager divesting into the pair does
// not change any wallet's holdings.
func (s *EventStore) HolderBalances(ctx context.Context, tokenAddress string) ([]*domain.HolderBalance, error) {
	query := `
		SELECT wallet,
		       SUM(CASE WHEN side = 'BUY' THEN token_amount ELSE -token_amount END) AS balance,
		       BOOL_OR(kind = 'GENESIS') AS is_creator,
		       MIN(ts) AS first_seen,
		       MAX(ts) AS last_seen
		FROM events
		WHERE token_address = $1 AND kind IN ('GENESIS', 'TRADE')
		GROUP BY wallet
		HAVING SUM(CASE WHEN side = 'BUY' THEN token_amount ELSE -token_amount END) > 0
		ORDER BY balance DESC
	`

	rows, err := s.pool.Query(ctx, query, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("holder balances: %w", err)
	}
	defer rows.Close()

	var holders []*domain.HolderBalance
	for rows.Next() {
		h := &domain.HolderBalance{TokenAddress: tokenAddress}
		if err := rows.Scan(&h.Wallet, &h.Balance, &h.IsCreator, &h.FirstSeenAt, &h.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan holder row: %w", err)
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder rows: %w", err)
	}
	return holders, nil
}

// HolderCount counts wallets with positive projected balance.
func (s *EventStore) HolderCount(ctx context.Context, tokenAddress string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT wallet
			FROM events
			WHERE token_address = $1 AND kind IN ('GENESIS', 'TRADE')
			GROUP BY wallet
			HAVING SUM(CASE WHEN side = 'BUY' THEN token_amount ELSE -token_amount END) > 0
		) holders
	`

	var n int64
	if err := s.pool.QueryRow(ctx, query, tokenAddress).Scan(&n); err != nil {
		return 0, fmt.Errorf("holder count: %w", err)
	}
	return n, nil
}

// scanEvents scans multiple rows into a slice of CanonicalEvent.
func scanEvents(rows pgx.Rows) ([]*domain.CanonicalEvent, error) {
	var events []*domain.CanonicalEvent

	for rows.Next() {
		var (
			e           domain.CanonicalEvent
			kind        string
			side        string
			priceSource string
		)
		err := rows.Scan(
			&e.TxHash,
			&kind,
			&side,
			&e.TokenAddress,
			&e.Wallet,
			&e.IsDev,
			&e.TokenAmount,
			&e.ConsiderationAmount,
			&e.ConsiderationSymbol,
			&e.ConsiderationUSD,
			&e.PriceUSD,
			&e.MarketCapUSD,
			&priceSource,
			&e.IsMigration,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.Side = domain.TradeSide(side)
		e.PriceSource = domain.PriceSource(priceSource)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
