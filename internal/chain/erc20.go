package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20MetadataABI = `[
	{"name": "name", "type": "function", "stateMutability": "view",
	 "inputs": [], "outputs": [{"name": "", "type": "string"}]},
	{"name": "symbol", "type": "function", "stateMutability": "view",
	 "inputs": [], "outputs": [{"name": "", "type": "string"}]}
]`

var (
	erc20ParseOnce sync.Once
	erc20ABI       abi.ABI
	erc20ParseErr  error
)

func erc20ContractABI() (abi.ABI, error) {
	erc20ParseOnce.Do(func() {
		erc20ABI, erc20ParseErr = abi.JSON(strings.NewReader(erc20MetadataABI))
	})
	return erc20ABI, erc20ParseErr
}

// ContractCaller is the subset of the RPC client needed for read-only
// contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Reader resolves a token contract's name and symbol.
type ERC20Reader struct {
	caller ContractCaller
}

// NewERC20Reader wires an RPC caller for token identity lookups.
func NewERC20Reader(caller ContractCaller) *ERC20Reader {
	return &ERC20Reader{caller: caller}
}

// Identity calls name() and symbol() on the token contract. A contract
// that implements neither yields two empty strings and no error.
func (r *ERC20Reader) Identity(ctx context.Context, tokenAddress string) (name, symbol string, err error) {
	if !common.IsHexAddress(tokenAddress) {
		return "", "", fmt.Errorf("invalid token address %q", tokenAddress)
	}
	addr := common.HexToAddress(tokenAddress)

	name, err = r.callString(ctx, addr, "name")
	if err != nil {
		return "", "", err
	}
	symbol, err = r.callString(ctx, addr, "symbol")
	if err != nil {
		return "", "", err
	}
	return name, symbol, nil
}

func (r *ERC20Reader) callString(ctx context.Context, addr common.Address, method string) (string, error) {
	contractABI, err := erc20ContractABI()
	if err != nil {
		return "", err
	}

	input, err := contractABI.Pack(method)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}

	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return "", fmt.Errorf("call %s on %s: %w", method, addr.Hex(), err)
	}
	if len(output) == 0 {
		return "", nil
	}

	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return "", fmt.Errorf("unpack %s on %s: %w", method, addr.Hex(), err)
	}
	if len(values) == 0 {
		return "", nil
	}
	s, _ := values[0].(string)
	return s, nil
}
