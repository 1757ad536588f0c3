package memory

import (
	"context"
	"sort"
	"sync"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// RegistryStore is an in-memory implementation of storage.RegistryStore.
// The dead sweep needs the ledger's trailing trade window, so the store
// holds a reference to the event store it is paired with.
type RegistryStore struct {
	mu     sync.RWMutex
	tokens map[string]*domain.TokenRegistry
	events *EventStore
}

// NewRegistryStore creates a new in-memory registry backed by events for
// its sweep queries.
func NewRegistryStore(events *EventStore) *RegistryStore {
	return &RegistryStore{
		tokens: make(map[string]*domain.TokenRegistry),
		events: events,
	}
}

var _ storage.RegistryStore = (*RegistryStore)(nil)

// CreateIfAbsent inserts a registry row unless the token exists.
func (s *RegistryStore) CreateIfAbsent(_ context.Context, t *domain.TokenRegistry) (bool, error) {
	if t == nil || t.TokenAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.TokenAddress]; exists {
		return false, nil
	}
	cp := *t
	s.tokens[t.TokenAddress] = &cp
	return true, nil
}

// GetByAddress returns a token row.
func (s *RegistryStore) GetByAddress(_ context.Context, tokenAddress string) (*domain.TokenRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[tokenAddress]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// MarkMigrated transitions to MIGRATED exactly once.
func (s *RegistryStore) MarkMigrated(_ context.Context, tokenAddress string, migratedAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenAddress]
	if !ok {
		return false, storage.ErrNotFound
	}
	if t.Status == domain.StatusMigrated {
		return false, nil
	}
	t.Status = domain.StatusMigrated
	t.MigratedAt = migratedAt
	t.UpdatedAt = migratedAt
	return true, nil
}

// MarkQualified flips the monotonic qualification flag.
func (s *RegistryStore) MarkQualified(_ context.Context, tokenAddress string, qualifiedAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenAddress]
	if !ok {
		return false, storage.ErrNotFound
	}
	if t.IsQualified {
		return false, nil
	}
	t.IsQualified = true
	t.QualifiedAt = qualifiedAt
	t.UpdatedAt = qualifiedAt
	return true, nil
}

// SetStatus applies an external status override.
func (s *RegistryStore) SetStatus(_ context.Context, tokenAddress string, status domain.TokenStatus, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenAddress]
	if !ok {
		return storage.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = updatedAt
	return nil
}

// UpdateEnrichment merges non-empty metadata fields.
func (s *RegistryStore) UpdateEnrichment(_ context.Context, tokenAddress string, meta *domain.TokenMetadata, updatedAt int64) error {
	if meta == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenAddress]
	if !ok {
		return storage.ErrNotFound
	}
	if meta.Image != "" {
		t.Image = meta.Image
	}
	if meta.Website != "" {
		t.Website = meta.Website
	}
	if meta.Twitter != "" {
		t.Twitter = meta.Twitter
	}
	if meta.Telegram != "" {
		t.Telegram = meta.Telegram
	}
	t.UpdatedAt = updatedAt
	return nil
}

// ListAddresses returns every registered token address, ordered.
func (s *RegistryStore) ListAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tokens))
	for addr := range s.tokens {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

// UnqualifiedCandidates lists sweep-eligible tokens.
func (s *RegistryStore) UnqualifiedCandidates(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for addr, t := range s.tokens {
		if t.IsQualified {
			continue
		}
		if t.Status == domain.StatusTradingActive || t.Status == domain.StatusMigrated {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SweepDead marks eligible tokens DEAD in one pass over the registry
// joined against the ledger's trailing trade window.
func (s *RegistryStore) SweepDead(ctx context.Context, sinceTimestamp int64, maxMarketCap float64, sweptAt int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []string
	for addr, t := range s.tokens {
		switch t.Status {
		case domain.StatusDead, domain.StatusRug, domain.StatusIgnored:
			continue
		}

		recent, err := s.events.CountRecentTrades(ctx, addr, sinceTimestamp)
		if err != nil {
			return swept, err
		}
		if recent > 0 {
			continue
		}

		mcap, _, err := s.events.LastMarketCap(ctx, addr)
		if err != nil {
			return swept, err
		}
		if mcap >= maxMarketCap {
			continue
		}

		t.Status = domain.StatusDead
		t.UpdatedAt = sweptAt
		swept = append(swept, addr)
	}
	sort.Strings(swept)
	return swept, nil
}
