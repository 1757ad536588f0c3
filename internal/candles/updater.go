// Package candles derives OHLCV buckets from the canonical event ledger.
// Candles are a pure function of a token's event sequence: incrementally
// updating them event-by-event and rebuilding them by full replay must
// produce identical output.
package candles

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/storage"
)

// Updater applies events to the candle store across all configured
// timeframes.
type Updater struct {
	store  storage.CandleStore
	frames []frame
	logger *zap.Logger
}

type frame struct {
	label   string
	seconds int64
}

// NewUpdater builds an updater over the given timeframes. A nil map uses
// the default set.
func NewUpdater(store storage.CandleStore, timeframes map[string]int64, logger *zap.Logger) *Updater {
	if timeframes == nil {
		timeframes = domain.Timeframes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	frames := make([]frame, 0, len(timeframes))
	for label, sec := range timeframes {
		frames = append(frames, frame{label: label, seconds: sec})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].seconds < frames[j].seconds })

	return &Updater{store: store, frames: frames, logger: logger}
}

// Apply folds one priced event into every timeframe's current bucket.
// Events for the same token must arrive in ledger order; the open of a
// fresh bucket chains from the previous candle's close.
func (u *Updater) Apply(ctx context.Context, ev *domain.CanonicalEvent) error {
	if ev == nil || ev.PriceUSD <= 0 {
		return nil
	}

	for _, f := range u.frames {
		if err := u.applyOne(ctx, ev, f); err != nil {
			return fmt.Errorf("apply %s candle for %s: %w", f.label, ev.TokenAddress, err)
		}
	}
	return nil
}

func (u *Updater) applyOne(ctx context.Context, ev *domain.CanonicalEvent, f frame) error {
	bucket := domain.Bucket(ev.Timestamp, f.seconds)

	c, err := u.store.Get(ctx, ev.TokenAddress, f.label, bucket)
	if errors.Is(err, storage.ErrNotFound) {
		c, err = u.openBucket(ctx, ev, f, bucket)
	}
	if err != nil {
		return err
	}

	if ev.PriceUSD > c.High {
		c.High = ev.PriceUSD
	}
	if ev.PriceUSD < c.Low {
		c.Low = ev.PriceUSD
	}
	c.Close = ev.PriceUSD
	c.MarketCapUSD = ev.MarketCapUSD

	c.VolumeUSD += ev.ConsiderationUSD
	switch ev.Side {
	case domain.SideBuy:
		c.BuyVolumeUSD += ev.ConsiderationUSD
	case domain.SideSell:
		c.SellVolumeUSD += ev.ConsiderationUSD
	}
	c.TxCount++

	if err := u.store.Upsert(ctx, c); err != nil {
		return err
	}
	observability.DefaultMetrics.CandleUpserts.Inc()
	return nil
}

// openBucket starts a fresh candle. Its open is the close of the latest
// earlier candle, or the event's own price for the token's first candle.
// High/low start at the event price so a gap down from the previous close
// does not fabricate a traded high.
func (u *Updater) openBucket(ctx context.Context, ev *domain.CanonicalEvent, f frame, bucket int64) (*domain.Candle, error) {
	open := ev.PriceUSD
	prev, err := u.store.Last(ctx, ev.TokenAddress, f.label)
	switch {
	case err == nil && prev.BucketStart < bucket:
		open = prev.Close
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	return &domain.Candle{
		TokenAddress: ev.TokenAddress,
		Timeframe:    f.label,
		BucketStart:  bucket,
		Open:         open,
		High:         ev.PriceUSD,
		Low:          ev.PriceUSD,
		Close:        ev.PriceUSD,
	}, nil
}

// Rebuild drops a token's candles and replays its full event sequence
// from the ledger. This is the correctness baseline for the incremental
// path and the recovery tool after storage divergence.
func (u *Updater) Rebuild(ctx context.Context, events storage.EventStore, tokenAddress string) error {
	if err := u.store.DeleteToken(ctx, tokenAddress); err != nil {
		return fmt.Errorf("drop candles for %s: %w", tokenAddress, err)
	}

	all, err := events.QueryEvents(ctx, tokenAddress)
	if err != nil {
		return fmt.Errorf("load events for %s: %w", tokenAddress, err)
	}

	for _, ev := range all {
		if err := u.Apply(ctx, ev); err != nil {
			return err
		}
	}

	observability.DefaultMetrics.CandleRebuilds.Inc()
	u.logger.Info("candles rebuilt",
		zap.String("token", tokenAddress),
		zap.Int("events", len(all)))
	return nil
}
