package classifier

import (
	"context"
	"fmt"

	"meme-token-ledger/internal/chain"
	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/oracle"
)

// PriceReader is the read port onto the external price cache.
// *pricing.Cache satisfies it.
type PriceReader interface {
	Get(symbol string) (float64, bool)
}

// consideration is what the trader spent, resolved once per transaction
// and reused for every trade event within it.
type consideration struct {
	Amount float64
	Symbol string
	USD    float64
	Source domain.PriceSource
}

// resolver runs the price tier chain: PAIR (whitelisted asset into the
// manager, or native value) first, the bonding-curve oracle second.
type resolver struct {
	cfg    Config
	prices PriceReader
	oracle oracle.Resolver
}

// resolveShared evaluates the PAIR and native tiers for one transaction.
// nil means neither tier yielded a positive USD value and per-flow oracle
// resolution is the only option left.
func (r *resolver) resolveShared(tx *chain.Transaction, receipt *chain.Receipt, mctx domain.ManagerContext) *consideration {
	if spend := r.detectPairSpend(receipt, mctx.Manager); spend != nil {
		asset, _ := r.cfg.Whitelist.Lookup(spend.address)
		if asset.IsStable {
			return &consideration{
				Amount: spend.amount,
				Symbol: asset.Symbol,
				USD:    spend.amount,
				Source: domain.PricePair,
			}
		}
		px, ok := r.prices.Get(asset.Symbol)
		if !ok || px <= 0 {
			// A pair transfer exists but cannot be valued; the oracle
			// tier is still allowed to price the flow.
			return nil
		}
		return &consideration{
			Amount: spend.amount,
			Symbol: asset.Symbol,
			USD:    spend.amount * px,
			Source: domain.PricePair,
		}
	}

	if tx.Value != nil && tx.Value.Sign() > 0 && mctx.BaseUSD > 0 {
		amount := chain.FormatEther(tx.Value) * r.cfg.NativeSpendFactor
		if amount > 0 {
			return &consideration{
				Amount: amount,
				Symbol: r.cfg.NativeSymbol,
				USD:    amount * mctx.BaseUSD,
				Source: domain.PricePair,
			}
		}
	}

	return nil
}

type pairSpend struct {
	address string
	amount  float64
}

// detectPairSpend scans the receipt for a whitelisted asset transferred
// into the manager. The last matching transfer wins, mirroring contract
// call ordering where fee legs precede the principal.
func (r *resolver) detectPairSpend(receipt *chain.Receipt, manager string) *pairSpend {
	var found *pairSpend
	for _, log := range receipt.Logs {
		asset, ok := r.cfg.Whitelist.Lookup(logAddress(log))
		if !ok {
			continue
		}
		t, ok := chain.DecodeTransfer(log, asset.Decimals)
		if !ok {
			continue
		}
		if t.To != manager || t.Amount <= 0 {
			continue
		}
		found = &pairSpend{address: asset.Address, amount: t.Amount}
	}
	return found
}

// oraclePrice is a per-token executed price derived from bonding-curve
// state, shared by every flow of that token within one transaction.
type oraclePrice struct {
	PriceUSD     float64
	MarketCapUSD float64
}

// resolveOracle prices a token from its bonding-curve state. The raw
// reserve price is adjusted by the platform fee to reflect the price the
// trader actually executed at. (nil, nil) means the oracle refused: no
// state, zero price, or liquidity already added, in which case the flow
// stays unpriced and is skipped.
func (r *resolver) resolveOracle(ctx context.Context, tokenAddress string, mctx domain.ManagerContext) (*oraclePrice, error) {
	if r.oracle == nil {
		return nil, nil
	}

	quote, err := r.oracle.Resolve(ctx, tokenAddress, mctx.BaseUSD)
	if err != nil {
		return nil, fmt.Errorf("oracle resolve %s: %w", tokenAddress, err)
	}
	if quote == nil || quote.PriceUSD <= 0 || quote.LiquidityAdded {
		return nil, nil
	}

	priceUSD := quote.PriceUSD * (1 - r.cfg.PlatformFee)
	return &oraclePrice{
		PriceUSD:     priceUSD,
		MarketCapUSD: priceUSD * r.cfg.TotalSupply,
	}, nil
}
