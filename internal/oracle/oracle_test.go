package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	output []byte
	err    error

	lastCall ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastCall = call
	return f.output, f.err
}

func packTokenInfo(t *testing.T, priceWei *big.Int, liquidityAdded bool) []byte {
	t.Helper()
	contractABI, err := helperContractABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	method := contractABI.Methods["getTokenInfo"]
	out, err := method.Outputs.Pack(
		big.NewInt(3),
		common.HexToAddress("0x5c952063c7fc8610ffdb798152d69f0b9550762b"),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		priceWei,
		big.NewInt(0), big.NewInt(0), big.NewInt(0),
		big.NewInt(10), big.NewInt(100),
		big.NewInt(0), big.NewInt(0),
		liquidityAdded,
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	return out
}

func TestResolve_DerivesUSDPriceAndMarketCap(t *testing.T) {
	// 0.000002 native per token.
	priceWei := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil))
	caller := &fakeCaller{output: packTokenInfo(t, priceWei, false)}

	client, err := NewClient(caller, "", 1e9)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	quote, err := client.Resolve(context.Background(), "0x2222222222222222222222222222222222222222", 500)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote == nil {
		t.Fatal("Resolve returned nil quote")
	}

	wantUSD := 0.000002 * 500
	if quote.PriceUSD != wantUSD {
		t.Errorf("PriceUSD = %v, want %v", quote.PriceUSD, wantUSD)
	}
	if quote.MarketCapUSD != wantUSD*1e9 {
		t.Errorf("MarketCapUSD = %v, want %v", quote.MarketCapUSD, wantUSD*1e9)
	}
	if quote.LiquidityAdded {
		t.Error("LiquidityAdded = true, want false")
	}
	if quote.Manager != "0x5c952063c7fc8610ffdb798152d69f0b9550762b" {
		t.Errorf("Manager = %q", quote.Manager)
	}
	if caller.lastCall.To == nil || caller.lastCall.To.Hex() != common.HexToAddress(DefaultHelperAddress).Hex() {
		t.Errorf("call targeted %v, want helper contract", caller.lastCall.To)
	}
}

func TestResolve_LiquidityAddedFlagSurvives(t *testing.T) {
	caller := &fakeCaller{output: packTokenInfo(t, big.NewInt(1e12), true)}
	client, err := NewClient(caller, "", 1e9)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	quote, err := client.Resolve(context.Background(), "0x2222222222222222222222222222222222222222", 500)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote == nil || !quote.LiquidityAdded {
		t.Fatalf("quote = %+v, want LiquidityAdded = true", quote)
	}
}

func TestResolve_NoState(t *testing.T) {
	client, err := NewClient(&fakeCaller{output: nil}, "", 1e9)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	quote, err := client.Resolve(context.Background(), "0x2222222222222222222222222222222222222222", 500)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote != nil {
		t.Errorf("quote = %+v, want nil for empty helper state", quote)
	}
}

func TestResolve_ZeroPriceIsNil(t *testing.T) {
	caller := &fakeCaller{output: packTokenInfo(t, big.NewInt(0), false)}
	client, err := NewClient(caller, "", 1e9)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	quote, err := client.Resolve(context.Background(), "0x2222222222222222222222222222222222222222", 500)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote != nil {
		t.Errorf("quote = %+v, want nil for zero price", quote)
	}
}

func TestResolve_CallFailurePropagates(t *testing.T) {
	caller := &fakeCaller{err: errors.New("rpc down")}
	client, err := NewClient(caller, "", 1e9)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Resolve(context.Background(), "0x2222222222222222222222222222222222222222", 500); err == nil {
		t.Error("Resolve did not propagate call failure")
	}
}

func TestResolve_InvalidInputsAreNil(t *testing.T) {
	client, err := NewClient(&fakeCaller{}, "", 1e9)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if q, err := client.Resolve(context.Background(), "not-an-address", 500); q != nil || err != nil {
		t.Errorf("bad address: quote=%+v err=%v, want nil/nil", q, err)
	}
	if q, err := client.Resolve(context.Background(), "0x2222222222222222222222222222222222222222", 0); q != nil || err != nil {
		t.Errorf("zero base price: quote=%+v err=%v, want nil/nil", q, err)
	}
}
