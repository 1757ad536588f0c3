package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// CandleStore implements storage.CandleStore on ClickHouse. The candles
// table is a ReplacingMergeTree: an upsert is a plain insert and the
// newest version per key wins, so reads use FINAL.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

var _ storage.CandleStore = (*CandleStore)(nil)

const candleColumns = `token_address, timeframe, bucket_start, open, high, low, close,
	market_cap_usd, volume_usd, buy_volume_usd, sell_volume_usd, tx_count`

// Upsert writes a candle version; ReplacingMergeTree keeps the latest.
func (s *CandleStore) Upsert(ctx context.Context, c *domain.Candle) error {
	if c == nil || c.TokenAddress == "" || c.Timeframe == "" {
		return storage.ErrInvalidInput
	}

	query := fmt.Sprintf(`INSERT INTO candles (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, candleColumns)

	err := s.conn.Exec(ctx, query,
		c.TokenAddress, c.Timeframe, c.BucketStart,
		c.Open, c.High, c.Low, c.Close,
		c.MarketCapUSD, c.VolumeUSD, c.BuyVolumeUSD, c.SellVolumeUSD, c.TxCount,
	)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// Get returns one candle.
func (s *CandleStore) Get(ctx context.Context, tokenAddress, timeframe string, bucketStart int64) (*domain.Candle, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM candles FINAL
		WHERE token_address = ? AND timeframe = ? AND bucket_start = ?
	`, candleColumns)

	row := s.conn.QueryRow(ctx, query, tokenAddress, timeframe, bucketStart)
	c, err := scanCandle(row)
	if err != nil {
		return nil, fmt.Errorf("get candle: %w", mapNoRows(err))
	}
	return c, nil
}

// Last returns the latest candle for a token/timeframe.
func (s *CandleStore) Last(ctx context.Context, tokenAddress, timeframe string) (*domain.Candle, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM candles FINAL
		WHERE token_address = ? AND timeframe = ?
		ORDER BY bucket_start DESC
		LIMIT 1
	`, candleColumns)

	row := s.conn.QueryRow(ctx, query, tokenAddress, timeframe)
	c, err := scanCandle(row)
	if err != nil {
		return nil, fmt.Errorf("last candle: %w", mapNoRows(err))
	}
	return c, nil
}

// Range returns candles with bucket_start in [from, to], ascending.
func (s *CandleStore) Range(ctx context.Context, tokenAddress, timeframe string, from, to int64) ([]*domain.Candle, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM candles FINAL
		WHERE token_address = ? AND timeframe = ? AND bucket_start >= ? AND bucket_start <= ?
		ORDER BY bucket_start ASC
	`, candleColumns)

	rows, err := s.conn.Query(ctx, query, tokenAddress, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("range candles: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}

// DeleteToken removes all candles of one token before a replay rebuild.
func (s *CandleStore) DeleteToken(ctx context.Context, tokenAddress string) error {
	query := `ALTER TABLE candles DELETE WHERE token_address = ?`
	if err := s.conn.Exec(ctx, query, tokenAddress); err != nil {
		return fmt.Errorf("delete token candles: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both driver.Row and driver.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandle(row rowScanner) (*domain.Candle, error) {
	var c domain.Candle
	err := row.Scan(
		&c.TokenAddress, &c.Timeframe, &c.BucketStart,
		&c.Open, &c.High, &c.Low, &c.Close,
		&c.MarketCapUSD, &c.VolumeUSD, &c.BuyVolumeUSD, &c.SellVolumeUSD, &c.TxCount,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// mapNoRows converts the driver's no-rows error to storage.ErrNotFound.
func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
