package domain

// HolderBalance is the signed running sum of token amounts for one wallet:
// BUY adds, SELL subtracts. A wallet with balance <= 0 is not a current
// holder. Fully derived from the event ledger.
type HolderBalance struct {
	TokenAddress string
	Wallet       string
	Balance      float64
	IsCreator    bool
	FirstSeenAt  int64
	LastSeenAt   int64
}

// Holder reports whether the wallet currently holds a positive balance.
func (h *HolderBalance) Holder() bool {
	return h.Balance > 0
}
