// Package chain holds the minimal EVM transaction and log surface the
// engine consumes from the ingestion boundary.
package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction is the subset of an EVM transaction the classifier needs.
type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address // nil for contract creation
	Value *big.Int        // native value in wei
	Input []byte          // calldata
}

// Receipt is the ordered log list of a mined transaction.
type Receipt struct {
	Logs []*types.Log
}

// Selector returns the 4-byte method selector of the calldata as a
// lowercase 0x-prefixed string, or "" when the calldata is too short.
func (t *Transaction) Selector() string {
	if len(t.Input) < 4 {
		return ""
	}
	return "0x" + strings.ToLower(common.Bytes2Hex(t.Input[:4]))
}

// ToAddr returns the lowercase destination address, or "" for creations.
func (t *Transaction) ToAddr() string {
	if t.To == nil {
		return ""
	}
	return strings.ToLower(t.To.Hex())
}

// FromAddr returns the lowercase sender address.
func (t *Transaction) FromAddr() string {
	return strings.ToLower(t.From.Hex())
}
