package chain

import (
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)"), the
// topic0 of every ERC20 Transfer log.
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Transfer is a decoded ERC20 Transfer log. Addresses are lowercase hex.
type Transfer struct {
	Token  string // emitting contract
	From   string
	To     string
	Amount float64 // normalized by decimals
	Raw    *big.Int
}

// DecodeTransfer decodes a single log as an ERC20 Transfer. Returns false
// for non-Transfer logs and for malformed entries (wrong topic count,
// empty data); the caller skips those and continues.
func DecodeTransfer(log *types.Log, decimals int) (Transfer, bool) {
	if log == nil || len(log.Topics) != 3 || log.Topics[0] != TransferTopic {
		return Transfer{}, false
	}
	if len(log.Data) == 0 {
		return Transfer{}, false
	}

	raw := new(big.Int).SetBytes(log.Data)
	return Transfer{
		Token:  strings.ToLower(log.Address.Hex()),
		From:   topicAddr(log.Topics[1]),
		To:     topicAddr(log.Topics[2]),
		Amount: FormatUnits(raw, decimals),
		Raw:    raw,
	}, true
}

// topicAddr extracts the lowercase address packed in an indexed topic.
func topicAddr(t common.Hash) string {
	return strings.ToLower(common.BytesToAddress(t.Bytes()).Hex())
}

// FormatUnits converts a raw integer token amount to a float unit using
// the token's decimal precision.
func FormatUnits(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() <= 0 {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, big.NewFloat(math.Pow10(decimals)))
	v, _ := f.Float64()
	return v
}

// FormatEther converts wei to a float of native units.
func FormatEther(wei *big.Int) float64 {
	return FormatUnits(wei, 18)
}
