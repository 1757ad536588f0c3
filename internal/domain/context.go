package domain

import "strings"

// ManagerContext is the immutable per-invocation context handed to the
// classifier alongside a transaction and its receipt. All addresses are
// lowercase-normalized.
type ManagerContext struct {
	Manager   string
	Creators  map[string]string // registry owner per token; absent when unknown
	BlockTime int64             // unix seconds, bucketed to candle granularity
	BaseUSD   float64
}

// NewManagerContext normalizes addresses and buckets the block timestamp
// to the finest candle granularity. A transaction can touch several
// tokens, so the creator lookup is keyed by token address.
func NewManagerContext(manager string, creators map[string]string, blockTime int64, baseUSD float64) ManagerContext {
	normalized := make(map[string]string, len(creators))
	for token, creator := range creators {
		if creator == "" {
			continue
		}
		normalized[strings.ToLower(token)] = strings.ToLower(creator)
	}
	return ManagerContext{
		Manager:   strings.ToLower(manager),
		Creators:  normalized,
		BlockTime: Bucket(blockTime, 60),
		BaseUSD:   baseUSD,
	}
}

// IsCreator reports whether wallet is the token's registry creator,
// case-insensitively. False when the creator is unknown.
func (c ManagerContext) IsCreator(token, wallet string) bool {
	creator, ok := c.Creators[strings.ToLower(token)]
	if !ok {
		return false
	}
	return strings.EqualFold(wallet, creator)
}
