package postgres

import (
	"context"
	"fmt"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// RegistryStore implements storage.RegistryStore using PostgreSQL.
type RegistryStore struct {
	pool *Pool
}

// NewRegistryStore creates a new RegistryStore.
func NewRegistryStore(pool *Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

var _ storage.RegistryStore = (*RegistryStore)(nil)

// CreateIfAbsent inserts a registry row unless the token already exists.
func (s *RegistryStore) CreateIfAbsent(ctx context.Context, t *domain.TokenRegistry) (bool, error) {
	if t == nil || t.TokenAddress == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			token_address, name, symbol, creator, total_supply,
			launch_tx_hash, launch_time, base_symbol, base_address, base_stable,
			status, is_qualified, qualified_at, migrated_at,
			image, website, twitter, telegram, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (token_address) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		t.TokenAddress, t.Name, t.Symbol, t.Creator, t.TotalSupply,
		t.LaunchTxHash, t.LaunchTime, t.BaseSymbol, t.BaseAddress, t.BaseStable,
		string(t.Status), t.IsQualified, t.QualifiedAt, t.MigratedAt,
		t.Image, t.Website, t.Twitter, t.Telegram, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByAddress returns a token row.
func (s *RegistryStore) GetByAddress(ctx context.Context, tokenAddress string) (*domain.TokenRegistry, error) {
	query := `
		SELECT token_address, name, symbol, creator, total_supply,
		       launch_tx_hash, launch_time, base_symbol, base_address, base_stable,
		       status, is_qualified, qualified_at, migrated_at,
		       image, website, twitter, telegram, created_at, updated_at
		FROM tokens
		WHERE token_address = $1
	`

	var (
		t      domain.TokenRegistry
		status string
	)
	err := s.pool.QueryRow(ctx, query, tokenAddress).Scan(
		&t.TokenAddress, &t.Name, &t.Symbol, &t.Creator, &t.TotalSupply,
		&t.LaunchTxHash, &t.LaunchTime, &t.BaseSymbol, &t.BaseAddress, &t.BaseStable,
		&status, &t.IsQualified, &t.QualifiedAt, &t.MigratedAt,
		&t.Image, &t.Website, &t.Twitter, &t.Telegram, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	t.Status = domain.TokenStatus(status)
	return &t, nil
}

// MarkMigrated transitions to MIGRATED exactly once. The WHERE clause
// makes re-triggers report zero rows, so the write is confirmed before
// the transition is considered done.
func (s *RegistryStore) MarkMigrated(ctx context.Context, tokenAddress string, migratedAt int64) (bool, error) {
	query := `
		UPDATE tokens
		SET status = 'MIGRATED', migrated_at = $1, updated_at = $1
		WHERE token_address = $2 AND status <> 'MIGRATED'
	`

	tag, err := s.pool.Exec(ctx, query, migratedAt, tokenAddress)
	if err != nil {
		return false, fmt.Errorf("mark migrated: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkQualified flips the monotonic qualification flag.
func (s *RegistryStore) MarkQualified(ctx context.Context, tokenAddress string, qualifiedAt int64) (bool, error) {
	query := `
		UPDATE tokens
		SET is_qualified = true, qualified_at = $1, updated_at = $1
		WHERE token_address = $2 AND is_qualified = false
	`

	tag, err := s.pool.Exec(ctx, query, qualifiedAt, tokenAddress)
	if err != nil {
		return false, fmt.Errorf("mark qualified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetStatus applies an external status override.
func (s *RegistryStore) SetStatus(ctx context.Context, tokenAddress string, status domain.TokenStatus, updatedAt int64) error {
	query := `UPDATE tokens SET status = $1, updated_at = $2 WHERE token_address = $3`

	tag, err := s.pool.Exec(ctx, query, string(status), updatedAt, tokenAddress)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateEnrichment merges non-empty metadata fields into the row.
func (s *RegistryStore) UpdateEnrichment(ctx context.Context, tokenAddress string, meta *domain.TokenMetadata, updatedAt int64) error {
	if meta == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE tokens
		SET image    = COALESCE(NULLIF($1, ''), image),
		    website  = COALESCE(NULLIF($2, ''), website),
		    twitter  = COALESCE(NULLIF($3, ''), twitter),
		    telegram = COALESCE(NULLIF($4, ''), telegram),
		    updated_at = $5
		WHERE token_address = $6
	`

	tag, err := s.pool.Exec(ctx, query, meta.Image, meta.Website, meta.Twitter, meta.Telegram, updatedAt, tokenAddress)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UnqualifiedCandidates lists sweep-eligible tokens.
func (s *RegistryStore) UnqualifiedCandidates(ctx context.Context) ([]string, error) {
	query := `
		SELECT token_address
		FROM tokens
		WHERE status IN ('TRADING_ACTIVE', 'MIGRATED') AND is_qualified = false
		ORDER BY token_address
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("unqualified candidates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return out, nil
}

// ListAddresses returns every registered token address.
func (s *RegistryStore) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT token_address FROM tokens ORDER BY token_address`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return out, nil
}

// SweepDead marks eligible tokens DEAD in a single set-based statement:
// the registry joined against the trailing trade window, never N
// per-token round trips.
func (s *RegistryStore) SweepDead(ctx context.Context, sinceTimestamp int64, maxMarketCap float64, sweptAt int64) ([]string, error) {
	query := `
		UPDATE tokens t
		SET status = 'DEAD', updated_at = $1
		FROM (
			SELECT t2.token_address
			FROM tokens t2
			LEFT JOIN LATERAL (
				SELECT e.ts, e.market_cap_usd
				FROM events e
				WHERE e.token_address = t2.token_address AND e.kind = 'TRADE'
				ORDER BY e.ts DESC, e.id DESC
				LIMIT 1
			) last ON true
			WHERE t2.status NOT IN ('DEAD', 'RUG', 'IGNORED')
			  AND COALESCE(last.ts, 0) < $2
			  AND COALESCE(last.market_cap_usd, 0) < $3
		) dead
		WHERE t.token_address = dead.token_address
		RETURNING t.token_address
	`

	rows, err := s.pool.Query(ctx, query, sweptAt, sinceTimestamp, maxMarketCap)
	if err != nil {
		return nil, fmt.Errorf("sweep dead tokens: %w", err)
	}
	defer rows.Close()

	var swept []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan swept row: %w", err)
		}
		swept = append(swept, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swept rows: %w", err)
	}
	return swept, nil
}
