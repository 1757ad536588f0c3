package classifier

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"meme-token-ledger/internal/chain"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/oracle"
)

// Classifier produces canonical events from one transaction at a time.
// It has no side effects beyond price-resolution calls; persistence and
// lifecycle transitions belong to the caller.
type Classifier struct {
	cfg    Config
	res    *resolver
	logger *zap.Logger
}

// New builds a classifier. prices backs the PAIR tier for volatile
// assets; oracleClient backs the bonding-curve tier and may be nil, which
// disables that tier.
func New(cfg Config, prices PriceReader, oracleClient oracle.Resolver, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		cfg:    cfg,
		res:    &resolver{cfg: cfg, prices: prices, oracle: oracleClient},
		logger: logger,
	}
}

// Classify maps a transaction and its receipt to zero or more canonical
// events. Malformed logs are skipped. Unpriceable flows are skipped.
// A returned error covers oracle failures only; events classified before
// and after the failing flow are still returned and valid.
func (c *Classifier) Classify(ctx context.Context, tx *chain.Transaction, receipt *chain.Receipt, mctx domain.ManagerContext) ([]domain.CanonicalEvent, error) {
	if tx == nil || receipt == nil || mctx.Manager == "" {
		return nil, nil
	}

	if tx.ToAddr() == mctx.Manager && tx.Selector() == c.cfg.CreateTokenSelector {
		return c.classifyGenesis(tx, receipt, mctx), nil
	}
	return c.classifyTrades(ctx, tx, receipt, mctx)
}

// classifyGenesis handles a token-creation call: the manager transfers
// the creator's initial allocation, paid for with native value or a
// whitelisted asset. An unpriceable launch produces no event.
func (c *Classifier) classifyGenesis(tx *chain.Transaction, receipt *chain.Receipt, mctx domain.ManagerContext) []domain.CanonicalEvent {
	creator := tx.FromAddr()

	var tokenAddress string
	var received float64
	for _, log := range receipt.Logs {
		if _, whitelisted := c.cfg.Whitelist.Lookup(logAddress(log)); whitelisted {
			continue
		}
		t, ok := chain.DecodeTransfer(log, c.cfg.TokenDecimals)
		if !ok {
			continue
		}
		if t.From == mctx.Manager && t.To == creator && t.Amount > 0 {
			tokenAddress = t.Token
			received += t.Amount
		}
	}
	if tokenAddress == "" || received <= 0 {
		return nil
	}

	shared := c.res.resolveShared(tx, receipt, mctx)
	if shared == nil || shared.USD <= 0 {
		c.logger.Debug("unpriceable genesis discarded",
			zap.String("tx", tx.Hash.Hex()),
			zap.String("token", tokenAddress))
		return nil
	}

	priceUSD := shared.USD / received
	return []domain.CanonicalEvent{{
		Kind:                domain.KindGenesis,
		Side:                domain.SideBuy,
		TxHash:              strings.ToLower(tx.Hash.Hex()),
		TokenAddress:        tokenAddress,
		Wallet:              creator,
		IsDev:               true,
		TokenAmount:         received,
		ConsiderationAmount: shared.Amount,
		ConsiderationSymbol: shared.Symbol,
		ConsiderationUSD:    shared.USD,
		PriceUSD:            priceUSD,
		MarketCapUSD:        priceUSD * c.cfg.TotalSupply,
		PriceSource:         shared.Source,
		Timestamp:           mctx.BlockTime,
	}}
}

// classifyTrades walks the receipt's token transfers across the manager
// boundary and emits one event per flow. The PAIR/native consideration is
// resolved once and shared; tokens it cannot price fall back to per-token
// oracle resolution.
func (c *Classifier) classifyTrades(ctx context.Context, tx *chain.Transaction, receipt *chain.Receipt, mctx domain.ManagerContext) ([]domain.CanonicalEvent, error) {
	isLiquidityTx := tx.Selector() == c.cfg.AddLiquiditySelector && tx.ToAddr() == mctx.Manager

	shared := c.res.resolveShared(tx, receipt, mctx)

	var (
		events       []domain.CanonicalEvent
		errs         []error
		oraclePrices map[string]*oraclePrice
	)

	for _, log := range receipt.Logs {
		addr := logAddress(log)
		if _, whitelisted := c.cfg.Whitelist.Lookup(addr); whitelisted {
			continue
		}
		if addr == mctx.Manager {
			continue
		}

		t, ok := chain.DecodeTransfer(log, c.cfg.TokenDecimals)
		if !ok || t.Amount <= 0 {
			continue
		}

		ev := domain.CanonicalEvent{
			TxHash:       strings.ToLower(tx.Hash.Hex()),
			TokenAddress: t.Token,
			TokenAmount:  t.Amount,
			Timestamp:    mctx.BlockTime,
		}

		switch {
		case isLiquidityTx && t.From == mctx.Manager:
			ev.Kind = domain.KindLiquidity
			ev.Side = domain.SideSell
			ev.Wallet = mctx.Manager
			ev.IsMigration = true
		case t.From == mctx.Manager && t.To != mctx.Manager:
			ev.Kind = domain.KindTrade
			ev.Side = domain.SideBuy
			ev.Wallet = t.To
		case t.To == mctx.Manager && t.From != mctx.Manager:
			ev.Kind = domain.KindTrade
			ev.Side = domain.SideSell
			ev.Wallet = t.From
		default:
			continue
		}
		ev.IsDev = mctx.IsCreator(t.Token, ev.Wallet)

		if shared != nil {
			ev.ConsiderationAmount = shared.Amount
			ev.ConsiderationSymbol = shared.Symbol
			ev.ConsiderationUSD = shared.USD
			ev.PriceUSD = shared.USD / t.Amount
			ev.MarketCapUSD = ev.PriceUSD * c.cfg.TotalSupply
			ev.PriceSource = shared.Source
			events = append(events, ev)
			continue
		}

		// Migrations are priced by their own liquidity legs; the oracle
		// refuses post-liquidity state anyway.
		if ev.Kind == domain.KindLiquidity {
			continue
		}

		if oraclePrices == nil {
			oraclePrices = make(map[string]*oraclePrice)
		}
		price, cached := oraclePrices[t.Token]
		if !cached {
			var err error
			price, err = c.res.resolveOracle(ctx, t.Token, mctx)
			if err != nil {
				errs = append(errs, err)
				oraclePrices[t.Token] = nil
				continue
			}
			oraclePrices[t.Token] = price
		}
		if price == nil {
			continue
		}

		ev.ConsiderationUSD = price.PriceUSD * t.Amount
		ev.ConsiderationSymbol = c.cfg.NativeSymbol
		if mctx.BaseUSD > 0 {
			ev.ConsiderationAmount = ev.ConsiderationUSD / mctx.BaseUSD
		}
		ev.PriceUSD = price.PriceUSD
		ev.MarketCapUSD = price.MarketCapUSD
		ev.PriceSource = domain.PriceOracle
		events = append(events, ev)
	}

	return events, errors.Join(errs...)
}

func logAddress(log *types.Log) string {
	if log == nil {
		return ""
	}
	return strings.ToLower(log.Address.Hex())
}
