// Package ingest runs the per-block processing loop: classify every
// manager-touching transaction, append the resulting events to the
// ledger, and fan derived-state updates out per token.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"meme-token-ledger/internal/candles"
	"meme-token-ledger/internal/chain"
	"meme-token-ledger/internal/classifier"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/lifecycle"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/storage"
)

const seenTxCap = 10000

// EventSink receives every newly persisted event, e.g. the websocket
// stream. Implementations must not block.
type EventSink interface {
	Publish(ev *domain.CanonicalEvent)
}

// TokenIdentity resolves a token contract's on-chain name and symbol.
type TokenIdentity interface {
	Identity(ctx context.Context, tokenAddress string) (name, symbol string, err error)
}

// Options wires the pipeline's collaborators.
type Options struct {
	Classifier *classifier.Classifier
	Events     storage.EventStore
	Registry   storage.RegistryStore
	Candles    *candles.Updater
	Lifecycle  *lifecycle.Engine
	Prices     classifier.PriceReader
	Reporter   Reporter
	Stream     EventSink     // optional
	Identity   TokenIdentity // optional
	Logger     *zap.Logger

	Manager      string
	NativeSymbol string
	TotalSupply  float64
	Whitelist    domain.PairWhitelist

	// Workers bounds the per-token fan-out. Defaults to 8.
	Workers int
}

// Pipeline is the single-writer-per-token-stream ingestion engine.
// Blocks are processed sequentially; within a block, distinct tokens'
// derived state is updated in parallel while each token's own events
// stay in transaction/log order.
type Pipeline struct {
	classifier *classifier.Classifier
	events     storage.EventStore
	registry   storage.RegistryStore
	candles    *candles.Updater
	lifecycle  *lifecycle.Engine
	prices     classifier.PriceReader
	reporter   Reporter
	stream     EventSink
	identity   TokenIdentity
	logger     *zap.Logger

	manager      string
	nativeSymbol string
	totalSupply  float64
	whitelist    domain.PairWhitelist

	pool pond.Pool
	seen *seenSet
}

// NewPipeline builds a pipeline from its collaborators.
func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = &ZapReporter{Logger: logger}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	whitelist := opts.Whitelist
	if whitelist == nil {
		whitelist = domain.DefaultPairWhitelist()
	}

	return &Pipeline{
		classifier:   opts.Classifier,
		events:       opts.Events,
		registry:     opts.Registry,
		candles:      opts.Candles,
		lifecycle:    opts.Lifecycle,
		prices:       opts.Prices,
		reporter:     reporter,
		stream:       opts.Stream,
		identity:     opts.Identity,
		logger:       logger,
		manager:      strings.ToLower(opts.Manager),
		nativeSymbol: opts.NativeSymbol,
		totalSupply:  opts.TotalSupply,
		whitelist:    whitelist,
		pool:         pond.NewPool(workers),
		seen:         newSeenSet(seenTxCap),
	}
}

// Run consumes blocks from the source until the context is cancelled or
// the source stops.
func (p *Pipeline) Run(ctx context.Context, source BlockSource) error {
	blocks := make(chan *Block, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- source.Run(ctx, blocks) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			// Drain anything the source delivered before stopping.
			for {
				select {
				case block := <-blocks:
					if perr := p.ProcessBlock(ctx, block); perr != nil {
						return fmt.Errorf("process block %d: %w", block.Number, perr)
					}
				default:
					return err
				}
			}
		case block := <-blocks:
			if err := p.ProcessBlock(ctx, block); err != nil {
				// Persistence-level failures: the block is the retry
				// unit, so surface and stop rather than drop events.
				return fmt.Errorf("process block %d: %w", block.Number, err)
			}
		}
	}
}

// ProcessBlock classifies every transaction sequentially, then applies
// the classified events per token in parallel. A returned error means
// persistence failed and the whole block should be retried; soft
// failures (unpriceable flows, oracle errors) are reported and skipped.
func (p *Pipeline) ProcessBlock(ctx context.Context, block *Block) error {
	if block == nil || len(block.Txs) == 0 {
		return nil
	}

	baseUSD, _ := p.prices.Get(p.nativeSymbol)

	// Classification is sequential: per-token event order inside the
	// block must follow transaction/log order.
	perToken := make(map[string][]domain.CanonicalEvent)
	var order []string
	var processed []string

	for _, btx := range block.Txs {
		if btx.Tx == nil || btx.Receipt == nil {
			continue
		}
		hash := strings.ToLower(btx.Tx.Hash.Hex())
		if p.seen.Contains(hash) {
			continue
		}
		processed = append(processed, hash)
		observability.DefaultMetrics.TransactionsProcessed.Inc()

		creators := p.lookupCreators(ctx, btx.Receipt)
		mctx := domain.NewManagerContext(p.manager, creators, block.Time, baseUSD)

		events, err := p.classifier.Classify(ctx, btx.Tx, btx.Receipt, mctx)
		if err != nil {
			p.reporter.Report(hash, "classify", err, map[string]any{
				"block": block.Number,
			})
			observability.RecordSkip("classify")
		}

		for _, ev := range events {
			observability.RecordEventClassified(string(ev.Kind))
			if _, ok := perToken[ev.TokenAddress]; !ok {
				order = append(order, ev.TokenAddress)
			}
			perToken[ev.TokenAddress] = append(perToken[ev.TokenAddress], ev)
		}
	}

	// Per-token fan-out: no two tokens' event streams interact.
	group := p.pool.NewGroup()
	for _, token := range order {
		evs := perToken[token]
		group.SubmitErr(func() error {
			return p.applyToken(ctx, token, evs)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Hashes are recorded only once the block persisted, so a failed
	// block is retried in full.
	for _, hash := range processed {
		p.seen.Add(hash)
	}

	observability.RecordBlockProcessed(block.Number)
	return nil
}

// applyToken persists one token's events in order and drives the derived
// state behind them.
func (p *Pipeline) applyToken(ctx context.Context, token string, events []domain.CanonicalEvent) error {
	if err := p.ensureRegistry(ctx, token, events); err != nil {
		return err
	}

	for i := range events {
		ev := &events[i]

		inserted, err := p.events.Append(ctx, ev)
		if err != nil {
			return fmt.Errorf("append %s: %w", ev.Key(), err)
		}
		observability.RecordAppend(inserted)
		if !inserted {
			continue
		}
		if p.stream != nil {
			p.stream.Publish(ev)
		}

		if err := p.candles.Apply(ctx, ev); err != nil {
			return err
		}

		if ev.IsMigration {
			if _, err := p.lifecycle.HandleMigration(ctx, token, ev.Timestamp); err != nil {
				return err
			}
			observability.DefaultMetrics.TokensMigrated.Inc()
		}

		if ev.Kind == domain.KindTrade {
			if _, err := p.lifecycle.CheckQualification(ctx, token); err != nil {
				p.reporter.Report(ev.TxHash, "qualify", err, map[string]any{
					"token": token,
				})
				observability.RecordSkip("qualify")
			}
		}
	}
	return nil
}

// ensureRegistry creates the token's registry row on first contact. A
// GENESIS event carries the launch identity; anything else is an
// externally-launched token imported with what the event shows.
func (p *Pipeline) ensureRegistry(ctx context.Context, token string, events []domain.CanonicalEvent) error {
	row := &domain.TokenRegistry{
		TokenAddress: token,
		TotalSupply:  p.totalSupply,
		BaseSymbol:   p.nativeSymbol,
		Status:       domain.StatusTradingActive,
		CreatedAt:    time.Now().Unix(),
	}
	for i := range events {
		ev := &events[i]
		if ev.Kind != domain.KindGenesis {
			continue
		}
		row.Creator = ev.Wallet
		row.LaunchTxHash = ev.TxHash
		row.LaunchTime = ev.Timestamp
		row.BaseSymbol = ev.ConsiderationSymbol

		if p.identity != nil {
			name, symbol, err := p.identity.Identity(ctx, token)
			if err != nil {
				// The row is still created; the identity stays blank
				// until a replay fills it.
				p.logger.Warn("token identity lookup failed",
					zap.String("token", token), zap.Error(err))
			} else {
				row.Name = name
				row.Symbol = symbol
			}
		}
		break
	}

	if _, err := p.registry.CreateIfAbsent(ctx, row); err != nil {
		return fmt.Errorf("ensure registry %s: %w", token, err)
	}
	return nil
}

// lookupCreators maps every launchpad token touched by the receipt to
// its registry creator. A transaction can trade several tokens, so each
// token's isDev flag must check its own creator. Unknown tokens are
// omitted, which disables isDev flagging for them.
func (p *Pipeline) lookupCreators(ctx context.Context, receipt *chain.Receipt) map[string]string {
	creators := make(map[string]string)
	for _, log := range receipt.Logs {
		t, ok := chain.DecodeTransfer(log, 18)
		if !ok {
			continue
		}
		if t.Token == p.manager {
			continue
		}
		if _, whitelisted := p.whitelist.Lookup(t.Token); whitelisted {
			continue
		}
		if _, done := creators[t.Token]; done {
			continue
		}
		reg, err := p.registry.GetByAddress(ctx, t.Token)
		if err != nil {
			continue
		}
		creators[t.Token] = reg.Creator
	}
	return creators
}
