package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{data: make(map[string]*domain.Candle)}
}

var _ storage.CandleStore = (*CandleStore)(nil)

func candleKey(token, timeframe string, bucket int64) string {
	return fmt.Sprintf("%s|%s|%d", token, timeframe, bucket)
}

// Upsert writes a candle, last write wins.
func (s *CandleStore) Upsert(_ context.Context, c *domain.Candle) error {
	if c == nil || c.TokenAddress == "" || c.Timeframe == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.data[candleKey(c.TokenAddress, c.Timeframe, c.BucketStart)] = &cp
	return nil
}

// Get returns one candle.
func (s *CandleStore) Get(_ context.Context, tokenAddress, timeframe string, bucketStart int64) (*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[candleKey(tokenAddress, timeframe, bucketStart)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Last returns the latest candle for a token/timeframe.
func (s *CandleStore) Last(_ context.Context, tokenAddress, timeframe string) (*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.Candle
	for _, c := range s.data {
		if c.TokenAddress != tokenAddress || c.Timeframe != timeframe {
			continue
		}
		if last == nil || c.BucketStart > last.BucketStart {
			last = c
		}
	}
	if last == nil {
		return nil, storage.ErrNotFound
	}
	cp := *last
	return &cp, nil
}

// Range returns candles with bucketStart in [from, to], ascending.
func (s *CandleStore) Range(_ context.Context, tokenAddress, timeframe string, from, to int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.TokenAddress == tokenAddress && c.Timeframe == timeframe &&
			c.BucketStart >= from && c.BucketStart <= to {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})
	return result, nil
}

// DeleteToken removes all candles of one token.
func (s *CandleStore) DeleteToken(_ context.Context, tokenAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.data {
		if c.TokenAddress == tokenAddress {
			delete(s.data, k)
		}
	}
	return nil
}
