package ingest

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"meme-token-ledger/internal/candles"
	"meme-token-ledger/internal/chain"
	"meme-token-ledger/internal/classifier"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/lifecycle"
	"meme-token-ledger/internal/storage/memory"
)

const (
	managerAddr = "0x5c952063c7fc8610ffdb798152d69f0b9550762b"
	creatorAddr = "0x1000000000000000000000000000000000000001"
	walletAddr  = "0x2000000000000000000000000000000000000002"
	tokenAddr   = "0x3000000000000000000000000000000000000003"
	tokenAddr2  = "0x4000000000000000000000000000000000000004"
	pairAddr    = "0x5000000000000000000000000000000000000005"

	usdtAddr = "0x55d398326f99059ff775485246999027b3197955"
)

type fakePrices map[string]float64

func (f fakePrices) Get(symbol string) (float64, bool) {
	px, ok := f[symbol]
	return px, ok
}

type testEnv struct {
	events   *memory.EventStore
	registry *memory.RegistryStore
	candles  *memory.CandleStore
	pipeline *Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	events := memory.NewEventStore()
	registry := memory.NewRegistryStore(events)
	candleStore := memory.NewCandleStore()

	cfg := classifier.DefaultConfig()
	prices := fakePrices{"BNB": 500}

	env := &testEnv{
		events:   events,
		registry: registry,
		candles:  candleStore,
	}
	env.pipeline = NewPipeline(Options{
		Classifier:   classifier.New(cfg, prices, nil, nil),
		Events:       events,
		Registry:     registry,
		Candles:      candles.NewUpdater(candleStore, map[string]int64{"1m": 60}, nil),
		Lifecycle:    lifecycle.New(events, registry, nil, lifecycle.DefaultThresholds(), nil),
		Prices:       prices,
		Manager:      managerAddr,
		NativeSymbol: "BNB",
		TotalSupply:  1e9,
	})
	return env
}

func addrTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func transferLog(token, from, to string, amount float64) *types.Log {
	raw, _ := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18)).Int(nil)
	return &types.Log{
		Address: common.HexToAddress(token),
		Topics:  []common.Hash{chain.TransferTopic, addrTopic(from), addrTopic(to)},
		Data:    common.LeftPadBytes(raw.Bytes(), 32),
	}
}

func makeTx(hash, from, selector string, value *big.Int, logs ...*types.Log) BlockTx {
	to := common.HexToAddress(managerAddr)
	if value == nil {
		value = big.NewInt(0)
	}
	return BlockTx{
		Tx: &chain.Transaction{
			Hash:  common.HexToHash(hash),
			From:  common.HexToAddress(from),
			To:    &to,
			Value: value,
			Input: common.FromHex(selector),
		},
		Receipt: &chain.Receipt{Logs: logs},
	}
}

func genesisTx(hash string) BlockTx {
	return makeTx(hash, creatorAddr, classifier.DefaultCreateTokenSelector, big.NewInt(1e18),
		transferLog(tokenAddr, managerAddr, creatorAddr, 1e7))
}

func buyTx(hash, wallet string, usdt, tokens float64) BlockTx {
	return makeTx(hash, wallet, "0xaaaaaaaa", nil,
		transferLog(usdtAddr, wallet, managerAddr, usdt),
		transferLog(tokenAddr, managerAddr, wallet, tokens))
}

func migrationTx(hash string) BlockTx {
	return makeTx(hash, creatorAddr, classifier.DefaultAddLiquiditySelector, big.NewInt(5e18),
		transferLog(tokenAddr, managerAddr, pairAddr, 2e8))
}

func TestProcessBlock_GenesisCreatesRegistry(t *testing.T) {
	env := newTestEnv(t)
	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}}

	if err := env.pipeline.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	reg, err := env.registry.GetByAddress(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("registry row missing: %v", err)
	}
	if reg.Creator != creatorAddr {
		t.Errorf("creator = %s, want %s", reg.Creator, creatorAddr)
	}
	if reg.Status != domain.StatusTradingActive {
		t.Errorf("status = %s, want TRADING_ACTIVE", reg.Status)
	}
	if reg.BaseSymbol != "BNB" {
		t.Errorf("baseSymbol = %s, want BNB", reg.BaseSymbol)
	}

	evs, err := env.events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs) != 1 || evs[0].Kind != domain.KindGenesis {
		t.Fatalf("ledger = %+v, want single GENESIS", evs)
	}
}

type fakeIdentity struct {
	name   string
	symbol string
	err    error
}

func (f *fakeIdentity) Identity(ctx context.Context, tokenAddress string) (string, string, error) {
	return f.name, f.symbol, f.err
}

func TestProcessBlock_GenesisResolvesIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.identity = &fakeIdentity{name: "Pepe Classic", symbol: "PEPEC"}
	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}}

	if err := env.pipeline.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	reg, err := env.registry.GetByAddress(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("registry row missing: %v", err)
	}
	if reg.Name != "Pepe Classic" || reg.Symbol != "PEPEC" {
		t.Errorf("identity = %q/%q, want Pepe Classic/PEPEC", reg.Name, reg.Symbol)
	}
}

func TestProcessBlock_IdentityFailureStillRegisters(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.identity = &fakeIdentity{err: errors.New("rpc down")}
	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}}

	if err := env.pipeline.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	reg, err := env.registry.GetByAddress(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("registry row missing: %v", err)
	}
	if reg.Name != "" || reg.Symbol != "" {
		t.Errorf("identity = %q/%q, want blank on lookup failure", reg.Name, reg.Symbol)
	}
}

func TestProcessBlock_TradeFlowUpdatesDerivedState(t *testing.T) {
	env := newTestEnv(t)
	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{
		genesisTx("0x01"),
		buyTx("0x02", walletAddr, 100, 50),
	}}

	if err := env.pipeline.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	evs, err := env.events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("ledger has %d events, want 2", len(evs))
	}

	c, err := env.candles.Last(context.Background(), tokenAddr, "1m")
	if err != nil {
		t.Fatalf("candle missing: %v", err)
	}
	if c.Close != 2 {
		t.Errorf("candle close = %v, want trade price 2", c.Close)
	}
	if c.TxCount != 2 {
		t.Errorf("txCount = %d, want 2 (genesis + trade)", c.TxCount)
	}
}

func TestProcessBlock_DevTradeFlagged(t *testing.T) {
	env := newTestEnv(t)

	first := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}}
	if err := env.pipeline.ProcessBlock(context.Background(), first); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	second := &Block{Number: 101, Time: 1700000060, Txs: []BlockTx{
		buyTx("0x02", creatorAddr, 100, 50),
	}}
	if err := env.pipeline.ProcessBlock(context.Background(), second); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	evs, err := env.events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("ledger has %d events, want 2", len(evs))
	}
	if !evs[1].IsDev {
		t.Error("creator trade not flagged isDev")
	}
}

func TestProcessBlock_MigrationTransitionsToken(t *testing.T) {
	env := newTestEnv(t)
	blocks := []*Block{
		{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}},
		{Number: 101, Time: 1700000060, Txs: []BlockTx{migrationTx("0x02")}},
	}

	for _, b := range blocks {
		if err := env.pipeline.ProcessBlock(context.Background(), b); err != nil {
			t.Fatalf("process block %d failed: %v", b.Number, err)
		}
	}

	reg, err := env.registry.GetByAddress(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if reg.Status != domain.StatusMigrated {
		t.Errorf("status = %s, want MIGRATED", reg.Status)
	}
	if reg.MigratedAt != domain.Bucket(1700000060, 60) {
		t.Errorf("migratedAt = %d, want event timestamp", reg.MigratedAt)
	}
}

func TestProcessBlock_SeenTxSkipped(t *testing.T) {
	env := newTestEnv(t)
	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}}

	for i := 0; i < 2; i++ {
		if err := env.pipeline.ProcessBlock(context.Background(), block); err != nil {
			t.Fatalf("process %d failed: %v", i, err)
		}
	}

	evs, err := env.events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs) != 1 {
		t.Errorf("ledger has %d events, want 1", len(evs))
	}
}

type failOnceEventStore struct {
	*memory.EventStore
	failed bool
}

func (s *failOnceEventStore) Append(ctx context.Context, ev *domain.CanonicalEvent) (bool, error) {
	if !s.failed {
		s.failed = true
		return false, errors.New("connection reset")
	}
	return s.EventStore.Append(ctx, ev)
}

func TestProcessBlock_FailedBlockRetries(t *testing.T) {
	events := memory.NewEventStore()
	store := &failOnceEventStore{EventStore: events}
	registry := memory.NewRegistryStore(events)
	prices := fakePrices{"BNB": 500}

	pipeline := NewPipeline(Options{
		Classifier:   classifier.New(classifier.DefaultConfig(), prices, nil, nil),
		Events:       store,
		Registry:     registry,
		Candles:      candles.NewUpdater(memory.NewCandleStore(), map[string]int64{"1m": 60}, nil),
		Lifecycle:    lifecycle.New(store, registry, nil, lifecycle.DefaultThresholds(), nil),
		Prices:       prices,
		Manager:      managerAddr,
		NativeSymbol: "BNB",
		TotalSupply:  1e9,
	})

	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}}
	if err := pipeline.ProcessBlock(context.Background(), block); err == nil {
		t.Fatal("persistence failure did not surface")
	}

	// The tx is not marked seen on failure, so re-delivering the block
	// persists its events.
	if err := pipeline.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	evs, err := events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs) != 1 {
		t.Errorf("ledger has %d events after retry, want 1", len(evs))
	}
}

func TestProcessBlock_MultiTokenDevPerToken(t *testing.T) {
	env := newTestEnv(t)

	launches := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{
		genesisTx("0x01"),
		makeTx("0x02", walletAddr, classifier.DefaultCreateTokenSelector, big.NewInt(1e18),
			transferLog(tokenAddr2, managerAddr, walletAddr, 1e7)),
	}}
	if err := env.pipeline.ProcessBlock(context.Background(), launches); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// The second token's creator buys the first token and sells its own
	// in one tx; only its own leg is a dev trade.
	trade := &Block{Number: 101, Time: 1700000060, Txs: []BlockTx{
		makeTx("0x03", walletAddr, "0xaaaaaaaa", nil,
			transferLog(usdtAddr, walletAddr, managerAddr, 100),
			transferLog(tokenAddr, managerAddr, walletAddr, 30),
			transferLog(tokenAddr2, walletAddr, managerAddr, 20)),
	}}
	if err := env.pipeline.ProcessBlock(context.Background(), trade); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	evs1, err := env.events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs1) != 2 {
		t.Fatalf("first token has %d events, want 2", len(evs1))
	}
	if evs1[1].IsDev {
		t.Error("first token's buy flagged isDev against the wrong creator")
	}

	evs2, err := env.events.QueryEvents(context.Background(), tokenAddr2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs2) != 2 {
		t.Fatalf("second token has %d events, want 2", len(evs2))
	}
	if !evs2[1].IsDev {
		t.Error("second token's creator sell not flagged isDev")
	}
}

func TestProcessBlock_ReplayIdempotentAcrossProcesses(t *testing.T) {
	// A fresh pipeline has an empty seen set; the ledger's uniqueness key
	// is what guarantees replay safety.
	env := newTestEnv(t)
	block := &Block{Number: 100, Time: 1700000000, Txs: []BlockTx{
		genesisTx("0x01"),
		buyTx("0x02", walletAddr, 100, 50),
	}}

	if err := env.pipeline.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	replay := NewPipeline(Options{
		Classifier:   classifier.New(classifier.DefaultConfig(), fakePrices{"BNB": 500}, nil, nil),
		Events:       env.events,
		Registry:     env.registry,
		Candles:      candles.NewUpdater(env.candles, map[string]int64{"1m": 60}, nil),
		Lifecycle:    lifecycle.New(env.events, env.registry, nil, lifecycle.DefaultThresholds(), nil),
		Prices:       fakePrices{"BNB": 500},
		Manager:      managerAddr,
		NativeSymbol: "BNB",
		TotalSupply:  1e9,
	})
	if err := replay.ProcessBlock(context.Background(), block); err != nil {
		t.Fatalf("replay pass failed: %v", err)
	}

	evs, err := env.events.QueryEvents(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(evs) != 2 {
		t.Errorf("ledger has %d events after replay, want 2", len(evs))
	}

	c, err := env.candles.Last(context.Background(), tokenAddr, "1m")
	if err != nil {
		t.Fatalf("candle missing: %v", err)
	}
	if c.TxCount != 2 {
		t.Errorf("txCount = %d after replay, want 2 (duplicates absorbed)", c.TxCount)
	}
}

func TestRunWithReplaySource(t *testing.T) {
	env := newTestEnv(t)
	source := &ReplaySource{Blocks: []*Block{
		{Number: 100, Time: 1700000000, Txs: []BlockTx{genesisTx("0x01")}},
		{Number: 101, Time: 1700000060, Txs: []BlockTx{buyTx("0x02", walletAddr, 100, 50)}},
	}}

	err := env.pipeline.Run(context.Background(), source)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	evs, qerr := env.events.QueryEvents(context.Background(), tokenAddr)
	if qerr != nil {
		t.Fatalf("query failed: %v", qerr)
	}
	if len(evs) != 2 {
		t.Errorf("ledger has %d events, want 2", len(evs))
	}
}
