// Package oracle queries the launchpad helper contract for a token's
// pre-migration bonding-curve state and derives a spot price from it.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"meme-token-ledger/internal/chain"
	"meme-token-ledger/internal/observability"
)

// DefaultHelperAddress is the Helper3 contract on BSC mainnet.
const DefaultHelperAddress = "0xF251F83e40a78868FcfA3FA4599Dad6494E46034"

const helperABI = `[{
	"name": "getTokenInfo",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "token", "type": "address"}],
	"outputs": [
		{"name": "version", "type": "uint256"},
		{"name": "manager", "type": "address"},
		{"name": "creator", "type": "address"},
		{"name": "price", "type": "uint256"},
		{"name": "a", "type": "uint256"},
		{"name": "b", "type": "uint256"},
		{"name": "c", "type": "uint256"},
		{"name": "offers", "type": "uint256"},
		{"name": "maxOffers", "type": "uint256"},
		{"name": "funds", "type": "uint256"},
		{"name": "maxFunds", "type": "uint256"},
		{"name": "liquidityAdded", "type": "bool"}
	]
}]`

var (
	parseOnce sync.Once
	parsedABI abi.ABI
	parseErr  error
)

func helperContractABI() (abi.ABI, error) {
	parseOnce.Do(func() {
		parsedABI, parseErr = abi.JSON(strings.NewReader(helperABI))
	})
	return parsedABI, parseErr
}

// Quote is the price derived from a token's bonding-curve reserves.
type Quote struct {
	PriceNative    float64
	PriceUSD       float64
	MarketCapUSD   float64
	Manager        string
	Creator        string
	LiquidityAdded bool
}

// Resolver is the price-resolution port the classifier depends on.
// A (nil, nil) return means the helper holds no state for the token.
type Resolver interface {
	Resolve(ctx context.Context, tokenAddress string, baseUSD float64) (*Quote, error)
}

// ContractCaller is the subset of the RPC client the oracle needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client resolves bonding-curve quotes via the helper contract.
type Client struct {
	caller      ContractCaller
	helper      common.Address
	totalSupply float64
}

// NewClient wires an RPC caller to the helper contract. An empty
// helperAddress uses the mainnet deployment.
func NewClient(caller ContractCaller, helperAddress string, totalSupply float64) (*Client, error) {
	if helperAddress == "" {
		helperAddress = DefaultHelperAddress
	}
	if !common.IsHexAddress(helperAddress) {
		return nil, fmt.Errorf("invalid helper address %q", helperAddress)
	}
	if _, err := helperContractABI(); err != nil {
		return nil, fmt.Errorf("parse helper abi: %w", err)
	}
	return &Client{
		caller:      caller,
		helper:      common.HexToAddress(helperAddress),
		totalSupply: totalSupply,
	}, nil
}

// Resolve calls getTokenInfo and converts the reserve price to USD via
// the base asset's USD price. It returns (nil, nil) when the helper has
// no state for the token or the reported price is not positive.
func (c *Client) Resolve(ctx context.Context, tokenAddress string, baseUSD float64) (*Quote, error) {
	if !common.IsHexAddress(tokenAddress) || baseUSD <= 0 {
		return nil, nil
	}

	contractABI, err := helperContractABI()
	if err != nil {
		return nil, err
	}

	input, err := contractABI.Pack("getTokenInfo", common.HexToAddress(tokenAddress))
	if err != nil {
		return nil, fmt.Errorf("pack getTokenInfo: %w", err)
	}

	start := time.Now()
	output, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.helper, Data: input}, nil)
	observability.RecordOracleCall(time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("call getTokenInfo for %s: %w", tokenAddress, err)
	}
	if len(output) == 0 {
		return nil, nil
	}

	values, err := contractABI.Unpack("getTokenInfo", output)
	if err != nil {
		return nil, fmt.Errorf("unpack getTokenInfo for %s: %w", tokenAddress, err)
	}
	if len(values) < 12 {
		return nil, fmt.Errorf("getTokenInfo for %s: short result (%d values)", tokenAddress, len(values))
	}

	rawPrice, ok := values[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getTokenInfo for %s: unexpected price type %T", tokenAddress, values[3])
	}
	priceNative := chain.FormatEther(rawPrice)
	if priceNative <= 0 {
		return nil, nil
	}

	manager, _ := values[1].(common.Address)
	creator, _ := values[2].(common.Address)
	liquidityAdded, _ := values[11].(bool)

	priceUSD := priceNative * baseUSD
	return &Quote{
		PriceNative:    priceNative,
		PriceUSD:       priceUSD,
		MarketCapUSD:   priceUSD * c.totalSupply,
		Manager:        strings.ToLower(manager.Hex()),
		Creator:        strings.ToLower(creator.Hex()),
		LiquidityAdded: liquidityAdded,
	}, nil
}
