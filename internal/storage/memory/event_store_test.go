package memory

import (
	"context"
	"testing"

	"meme-token-ledger/internal/domain"
)

func tradeEvent(tx, wallet string, side domain.TradeSide, amount, mcap float64, ts int64) *domain.CanonicalEvent {
	return &domain.CanonicalEvent{
		Kind:         domain.KindTrade,
		Side:         side,
		TxHash:       tx,
		TokenAddress: "0xtoken",
		Wallet:       wallet,
		TokenAmount:  amount,
		PriceUSD:     mcap / 1e9,
		MarketCapUSD: mcap,
		PriceSource:  domain.PricePair,
		Timestamp:    ts,
	}
}

func TestEventStore_AppendIdempotent(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	e := tradeEvent("0xaaa", "0xw1", domain.SideBuy, 100, 10_000, 1000)

	inserted, err := store.Append(ctx, e)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if !inserted {
		t.Error("first append not inserted")
	}

	// Re-appending the identical key is a no-op, not an error.
	inserted, err = store.Append(ctx, e)
	if err != nil {
		t.Fatalf("duplicate Append errored: %v", err)
	}
	if inserted {
		t.Error("duplicate append reported inserted")
	}

	events, err := store.QueryEvents(ctx, "0xtoken")
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestEventStore_KeyIncludesKindSideWallet(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	// Same tx hash, different side: both legs must persist.
	buy := tradeEvent("0xaaa", "0xw1", domain.SideBuy, 100, 10_000, 1000)
	sell := tradeEvent("0xaaa", "0xw2", domain.SideSell, 40, 10_000, 1000)

	if ins, _ := store.Append(ctx, buy); !ins {
		t.Error("buy leg not inserted")
	}
	if ins, _ := store.Append(ctx, sell); !ins {
		t.Error("sell leg not inserted")
	}

	events, _ := store.QueryEvents(ctx, "0xtoken")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestEventStore_AggregateTradeStats(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	store.Append(ctx, tradeEvent("0x1", "0xw1", domain.SideBuy, 10, 5_000, 1000))
	store.Append(ctx, tradeEvent("0x2", "0xw2", domain.SideBuy, 10, 25_000, 1060))
	store.Append(ctx, tradeEvent("0x3", "0xw1", domain.SideSell, 5, 18_000, 1120))

	// GENESIS events do not count toward trade stats.
	genesis := tradeEvent("0x0", "0xdev", domain.SideBuy, 100, 50_000, 940)
	genesis.Kind = domain.KindGenesis
	store.Append(ctx, genesis)

	stats, err := store.AggregateTradeStats(ctx, "0xtoken")
	if err != nil {
		t.Fatalf("AggregateTradeStats failed: %v", err)
	}
	if stats.Count != 3 {
		t.Errorf("Count = %d, want 3", stats.Count)
	}
	if stats.PeakMarketCap != 25_000 {
		t.Errorf("PeakMarketCap = %v, want 25000", stats.PeakMarketCap)
	}
}

func TestEventStore_CountRecentAndLastMarketCap(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	store.Append(ctx, tradeEvent("0x1", "0xw1", domain.SideBuy, 10, 5_000, 1000))
	store.Append(ctx, tradeEvent("0x2", "0xw2", domain.SideBuy, 10, 7_000, 2000))

	n, err := store.CountRecentTrades(ctx, "0xtoken", 1500)
	if err != nil {
		t.Fatalf("CountRecentTrades failed: %v", err)
	}
	if n != 1 {
		t.Errorf("recent trades = %d, want 1", n)
	}

	mcap, ok, err := store.LastMarketCap(ctx, "0xtoken")
	if err != nil {
		t.Fatalf("LastMarketCap failed: %v", err)
	}
	if !ok || mcap != 7_000 {
		t.Errorf("LastMarketCap = %v (ok=%v), want 7000", mcap, ok)
	}

	_, ok, _ = store.LastMarketCap(ctx, "0xother")
	if ok {
		t.Error("LastMarketCap reported a value for an unknown token")
	}
}

func TestEventStore_HolderProjection(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	store.Append(ctx, tradeEvent("0x1", "0xw1", domain.SideBuy, 100, 5_000, 1000))
	store.Append(ctx, tradeEvent("0x2", "0xw1", domain.SideSell, 40, 5_000, 1060))
	store.Append(ctx, tradeEvent("0x3", "0xw2", domain.SideBuy, 30, 5_000, 1120))
	// w3 exits fully: balance 0 means not a holder.
	store.Append(ctx, tradeEvent("0x4", "0xw3", domain.SideBuy, 10, 5_000, 1180))
	store.Append(ctx, tradeEvent("0x5", "0xw3", domain.SideSell, 10, 5_000, 1240))

	// LIQUIDITY events never move balances.
	liq := tradeEvent("0x6", "0xmanager", domain.SideSell, 500, 5_000, 1300)
	liq.Kind = domain.KindLiquidity
	liq.IsMigration = true
	store.Append(ctx, liq)

	holders, err := store.HolderBalances(ctx, "0xtoken")
	if err != nil {
		t.Fatalf("HolderBalances failed: %v", err)
	}
	if len(holders) != 2 {
		t.Fatalf("expected 2 holders, got %d", len(holders))
	}
	if holders[0].Wallet != "0xw1" || holders[0].Balance != 60 {
		t.Errorf("top holder = %s/%v, want 0xw1/60", holders[0].Wallet, holders[0].Balance)
	}

	count, _ := store.HolderCount(ctx, "0xtoken")
	if count != 2 {
		t.Errorf("HolderCount = %d, want 2", count)
	}
}
