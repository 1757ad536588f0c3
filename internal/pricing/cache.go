// Package pricing maintains the USD prices of the whitelisted volatile
// pair assets. A single background task refreshes the cache on a fixed
// period; readers always see the last successfully fetched value or none.
package pricing

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"meme-token-ledger/internal/observability"
)

// Source resolves the current USD price for one symbol. Implementations
// hit an external market-data API.
type Source interface {
	FetchUSD(ctx context.Context, symbol string) (float64, error)
}

// Entry is one cached quote.
type Entry struct {
	USD       float64
	UpdatedAt int64
}

// Cache is the external price cache: single writer (the refresh loop),
// many readers (the price resolver).
type Cache struct {
	symbols []string
	source  Source
	entries *xsync.Map[string, Entry]
	logger  *zap.Logger
}

// NewCache creates a cache tracking the given symbols.
func NewCache(symbols []string, source Source, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		symbols: symbols,
		source:  source,
		entries: xsync.NewMap[string, Entry](),
		logger:  logger,
	}
}

// Get returns the last successfully fetched USD price for a symbol.
// (0, false) means the cache holds no value and PAIR-tier resolution of
// that asset must fail through.
func (c *Cache) Get(symbol string) (float64, bool) {
	e, ok := c.entries.Load(symbol)
	if !ok {
		return 0, false
	}
	return e.USD, true
}

// RefreshAll fetches every tracked symbol once. A failed fetch keeps the
// previous value: readers never observe partial updates.
func (c *Cache) RefreshAll(ctx context.Context) {
	now := time.Now().Unix()
	for _, symbol := range c.symbols {
		price, err := c.source.FetchUSD(ctx, symbol)
		if err != nil {
			observability.DefaultMetrics.PriceRefreshErrors.Inc()
			c.logger.Warn("price refresh failed",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		c.entries.Store(symbol, Entry{USD: price, UpdatedAt: now})
	}
	observability.DefaultMetrics.LastPriceRefresh.Set(float64(now))
}

// Run refreshes the cache on the given period until ctx is cancelled.
// It performs one refresh immediately.
func (c *Cache) Run(ctx context.Context, period time.Duration) {
	c.RefreshAll(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshAll(ctx)
		}
	}
}
