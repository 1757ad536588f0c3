// Package lifecycle drives token state transitions: migration on
// liquidity events, monotonic qualification, and the periodic dead-token
// sweep. All transitions are idempotent; a failed transition is simply
// retried on the next trigger.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"meme-token-ledger/internal/enrich"
	"meme-token-ledger/internal/storage"
)

// Thresholds are the fixed promotion and reclamation parameters.
type Thresholds struct {
	QualifyTradeCount int64
	QualifyMarketCap  float64
	QualifyHolders    int64

	DeadWindow       time.Duration
	DeadMaxMarketCap float64
}

// DefaultThresholds returns the production parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QualifyTradeCount: 50,
		QualifyMarketCap:  20000,
		QualifyHolders:    25,
		DeadWindow:        24 * time.Hour,
		DeadMaxMarketCap:  5000,
	}
}

// Engine evaluates lifecycle transitions against the ledger and applies
// them through the registry store.
type Engine struct {
	events   storage.EventStore
	registry storage.RegistryStore
	fetcher  enrich.Fetcher // nil disables enrichment
	th       Thresholds
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a lifecycle engine.
func New(events storage.EventStore, registry storage.RegistryStore, fetcher enrich.Fetcher, th Thresholds, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		events:   events,
		registry: registry,
		fetcher:  fetcher,
		th:       th,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleMigration transitions a token to MIGRATED exactly once. Returns
// true on the first transition; re-triggering is a no-op.
func (e *Engine) HandleMigration(ctx context.Context, tokenAddress string, migratedAt int64) (bool, error) {
	flipped, err := e.registry.MarkMigrated(ctx, tokenAddress, migratedAt)
	if err != nil {
		return false, fmt.Errorf("mark migrated %s: %w", tokenAddress, err)
	}
	if flipped {
		e.logger.Info("token migrated",
			zap.String("token", tokenAddress),
			zap.Int64("at", migratedAt))
	}
	return flipped, nil
}

// CheckQualification evaluates one token against the qualification
// thresholds and flips the monotonic flag when all are met. Enrichment
// fires exactly once, on the flip.
func (e *Engine) CheckQualification(ctx context.Context, tokenAddress string) (bool, error) {
	stats, err := e.events.AggregateTradeStats(ctx, tokenAddress)
	if err != nil {
		return false, fmt.Errorf("trade stats %s: %w", tokenAddress, err)
	}
	if stats.Count < e.th.QualifyTradeCount || stats.PeakMarketCap < e.th.QualifyMarketCap {
		return false, nil
	}

	holders, err := e.events.HolderCount(ctx, tokenAddress)
	if err != nil {
		return false, fmt.Errorf("holder count %s: %w", tokenAddress, err)
	}
	if holders < e.th.QualifyHolders {
		return false, nil
	}

	flipped, err := e.registry.MarkQualified(ctx, tokenAddress, e.now().Unix())
	if err != nil {
		return false, fmt.Errorf("mark qualified %s: %w", tokenAddress, err)
	}
	if !flipped {
		return false, nil
	}

	e.logger.Info("token qualified",
		zap.String("token", tokenAddress),
		zap.Int64("trades", stats.Count),
		zap.Float64("peakMarketCap", stats.PeakMarketCap),
		zap.Int64("holders", holders))

	e.enrichOnce(ctx, tokenAddress)
	return true, nil
}

// enrichOnce pulls platform metadata for a freshly qualified token.
// Best-effort: a failed fetch is logged and dropped, the qualification
// itself stands.
func (e *Engine) enrichOnce(ctx context.Context, tokenAddress string) {
	if e.fetcher == nil {
		return
	}

	meta, err := e.fetcher.Fetch(ctx, tokenAddress)
	if err != nil {
		e.logger.Warn("enrichment fetch failed",
			zap.String("token", tokenAddress),
			zap.Error(err))
		return
	}
	if meta.Empty() {
		return
	}

	if err := e.registry.UpdateEnrichment(ctx, tokenAddress, meta, e.now().Unix()); err != nil {
		e.logger.Warn("enrichment write failed",
			zap.String("token", tokenAddress),
			zap.Error(err))
	}
}

// SweepQualification runs the qualification check over every eligible
// unqualified token. Returns how many tokens qualified this pass.
func (e *Engine) SweepQualification(ctx context.Context) (int, error) {
	candidates, err := e.registry.UnqualifiedCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list qualification candidates: %w", err)
	}

	qualified := 0
	for _, token := range candidates {
		flipped, err := e.CheckQualification(ctx, token)
		if err != nil {
			e.logger.Warn("qualification check failed",
				zap.String("token", token),
				zap.Error(err))
			continue
		}
		if flipped {
			qualified++
		}
	}
	return qualified, nil
}

// SweepDead reclaims stale tokens in one set-based registry pass: no
// trades in the trailing window and last known market cap below the
// threshold. Returns the addresses transitioned to DEAD.
func (e *Engine) SweepDead(ctx context.Context) ([]string, error) {
	now := e.now()
	since := now.Add(-e.th.DeadWindow).Unix()

	swept, err := e.registry.SweepDead(ctx, since, e.th.DeadMaxMarketCap, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("dead sweep: %w", err)
	}
	if len(swept) > 0 {
		e.logger.Info("dead tokens reclaimed",
			zap.Int("count", len(swept)),
			zap.Strings("tokens", swept))
	}
	return swept, nil
}
