package memory

import (
	"context"
	"sort"
	"sync"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
// It doubles as the test fake for the engine packages.
type EventStore struct {
	mu    sync.RWMutex
	byKey map[string]*domain.CanonicalEvent
	order []*domain.CanonicalEvent // insertion order, for stable replay
}

// NewEventStore creates a new in-memory event ledger.
func NewEventStore() *EventStore {
	return &EventStore{
		byKey: make(map[string]*domain.CanonicalEvent),
	}
}

var _ storage.EventStore = (*EventStore)(nil)

// Append inserts an event. Duplicate keys are absorbed as (false, nil).
func (s *EventStore) Append(_ context.Context, e *domain.CanonicalEvent) (bool, error) {
	if e == nil || e.TxHash == "" || e.TokenAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.Key()
	if _, exists := s.byKey[key]; exists {
		return false, nil
	}

	cp := *e
	s.byKey[key] = &cp
	s.order = append(s.order, &cp)
	return true, nil
}

// QueryEvents returns all events for a token ordered by timestamp,
// preserving insertion order within a bucket.
func (s *EventStore) QueryEvents(_ context.Context, tokenAddress string) ([]*domain.CanonicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CanonicalEvent
	for _, e := range s.order {
		if e.TokenAddress == tokenAddress {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

// AggregateTradeStats returns TRADE count and peak market cap.
func (s *EventStore) AggregateTradeStats(_ context.Context, tokenAddress string) (storage.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats storage.TradeStats
	for _, e := range s.order {
		if e.TokenAddress != tokenAddress || e.Kind != domain.KindTrade {
			continue
		}
		stats.Count++
		if e.MarketCapUSD > stats.PeakMarketCap {
			stats.PeakMarketCap = e.MarketCapUSD
		}
	}
	return stats, nil
}

// CountRecentTrades counts TRADE events at or after sinceTimestamp.
func (s *EventStore) CountRecentTrades(_ context.Context, tokenAddress string, sinceTimestamp int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.order {
		if e.TokenAddress == tokenAddress && e.Kind == domain.KindTrade && e.Timestamp >= sinceTimestamp {
			n++
		}
	}
	return n, nil
}

// LastMarketCap returns the market cap of the latest TRADE event.
func (s *EventStore) LastMarketCap(_ context.Context, tokenAddress string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found bool
		ts    int64
		mcap  float64
	)
	for _, e := range s.order {
		if e.TokenAddress != tokenAddress || e.Kind != domain.KindTrade {
			continue
		}
		if !found || e.Timestamp >= ts {
			found = true
			ts = e.Timestamp
			mcap = e.MarketCapUSD
		}
	}
	return mcap, found, nil
}

// HolderBalances projects positive per-wallet balances from the ledger.
func (s *EventStore) HolderBalances(_ context.Context, tokenAddress string) ([]*domain.HolderBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := make(map[string]*domain.HolderBalance)
	for _, e := range s.order {
		if e.TokenAddress != tokenAddress || !e.MovesBalance() {
			continue
		}
		h, ok := balances[e.Wallet]
		if !ok {
			h = &domain.HolderBalance{
				TokenAddress: tokenAddress,
				Wallet:       e.Wallet,
				IsCreator:    e.Kind == domain.KindGenesis,
				FirstSeenAt:  e.Timestamp,
			}
			balances[e.Wallet] = h
		}
		switch e.Side {
		case domain.SideBuy:
			h.Balance += e.TokenAmount
		case domain.SideSell:
			h.Balance -= e.TokenAmount
		}
		h.LastSeenAt = e.Timestamp
	}

	var result []*domain.HolderBalance
	for _, h := range balances {
		if h.Holder() {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Balance > result[j].Balance
	})
	return result, nil
}

// HolderCount counts wallets with positive projected balance.
func (s *EventStore) HolderCount(ctx context.Context, tokenAddress string) (int64, error) {
	holders, err := s.HolderBalances(ctx, tokenAddress)
	if err != nil {
		return 0, err
	}
	return int64(len(holders)), nil
}
