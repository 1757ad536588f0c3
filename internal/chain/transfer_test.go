package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func addrTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func TestDecodeTransfer(t *testing.T) {
	token := "0x1111111111111111111111111111111111111111"
	from := "0x2222222222222222222222222222222222222222"
	to := "0x3333333333333333333333333333333333333333"

	// 50 tokens at 18 decimals
	amount := new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	log := &types.Log{
		Address: common.HexToAddress(token),
		Topics:  []common.Hash{TransferTopic, addrTopic(from), addrTopic(to)},
		Data:    common.LeftPadBytes(amount.Bytes(), 32),
	}

	tr, ok := DecodeTransfer(log, 18)
	if !ok {
		t.Fatal("expected transfer to decode")
	}
	if tr.Token != token {
		t.Errorf("token = %s, want %s", tr.Token, token)
	}
	if tr.From != from || tr.To != to {
		t.Errorf("endpoints = %s -> %s", tr.From, tr.To)
	}
	if tr.Amount != 50 {
		t.Errorf("amount = %v, want 50", tr.Amount)
	}
}

func TestDecodeTransfer_Malformed(t *testing.T) {
	// Missing indexed topics: must be skipped, not decoded.
	log := &types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:  []common.Hash{TransferTopic},
		Data:    make([]byte, 32),
	}
	if _, ok := DecodeTransfer(log, 18); ok {
		t.Error("malformed log decoded as transfer")
	}

	// Wrong topic0.
	log.Topics = []common.Hash{{}, addrTopic("0x2"), addrTopic("0x3")}
	if _, ok := DecodeTransfer(log, 18); ok {
		t.Error("non-transfer log decoded as transfer")
	}

	if _, ok := DecodeTransfer(nil, 18); ok {
		t.Error("nil log decoded as transfer")
	}
}

func TestFormatUnits(t *testing.T) {
	if v := FormatUnits(big.NewInt(1_500_000), 6); v != 1.5 {
		t.Errorf("FormatUnits = %v, want 1.5", v)
	}
	if v := FormatUnits(nil, 18); v != 0 {
		t.Errorf("FormatUnits(nil) = %v, want 0", v)
	}
	if v := FormatUnits(big.NewInt(-5), 18); v != 0 {
		t.Errorf("FormatUnits(negative) = %v, want 0", v)
	}
}
