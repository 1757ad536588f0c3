package ingest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"meme-token-ledger/internal/chain"
)

// BlockTx pairs a transaction with its mined receipt.
type BlockTx struct {
	Tx      *chain.Transaction
	Receipt *chain.Receipt
}

// Block is one block's worth of manager-touching transactions, delivered
// in transaction order.
type Block struct {
	Number int64
	Time   int64
	Txs    []BlockTx
}

// BlockSource streams blocks to the pipeline, one at a time, in order.
type BlockSource interface {
	Run(ctx context.Context, out chan<- *Block) error
}

// RPCSource follows chain heads over an RPC/WebSocket endpoint and
// assembles blocks from the manager contract's logs.
type RPCSource struct {
	client  *ethclient.Client
	manager common.Address
	logger  *zap.Logger
}

// NewRPCSource builds a head-following source filtered to one manager
// contract.
func NewRPCSource(client *ethclient.Client, manager string, logger *zap.Logger) *RPCSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCSource{
		client:  client,
		manager: common.HexToAddress(manager),
		logger:  logger,
	}
}

// Run subscribes to new heads and emits one Block per head that touched
// the manager. Blocks the pipeline cannot keep up with back-pressure the
// subscription; a failed head fetch is logged and skipped.
func (s *RPCSource) Run(ctx context.Context, out chan<- *Block) error {
	heads := make(chan *types.Header, 16)
	sub, err := s.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("head subscription: %w", err)
		case head := <-heads:
			block, err := s.assemble(ctx, head)
			if err != nil {
				s.logger.Warn("block assembly failed",
					zap.Uint64("block", head.Number.Uint64()),
					zap.Error(err))
				continue
			}
			if block == nil {
				continue
			}
			select {
			case out <- block:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// assemble fetches the manager's logs for one block and hydrates the
// distinct transactions behind them. nil means the block never touched
// the manager.
func (s *RPCSource) assemble(ctx context.Context, head *types.Header) (*Block, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: head.Number,
		ToBlock:   head.Number,
		Addresses: []common.Address{s.manager},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	block := &Block{
		Number: head.Number.Int64(),
		Time:   int64(head.Time),
	}

	seen := make(map[common.Hash]struct{}, len(logs))
	for _, log := range logs {
		if _, ok := seen[log.TxHash]; ok {
			continue
		}
		seen[log.TxHash] = struct{}{}

		btx, err := s.hydrate(ctx, log.TxHash)
		if err != nil {
			return nil, err
		}
		block.Txs = append(block.Txs, btx)
	}
	return block, nil
}

func (s *RPCSource) hydrate(ctx context.Context, hash common.Hash) (BlockTx, error) {
	tx, _, err := s.client.TransactionByHash(ctx, hash)
	if err != nil {
		return BlockTx{}, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	receipt, err := s.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return BlockTx{}, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return BlockTx{}, fmt.Errorf("sender %s: %w", hash.Hex(), err)
	}

	return BlockTx{
		Tx: &chain.Transaction{
			Hash:  hash,
			From:  from,
			To:    tx.To(),
			Value: tx.Value(),
			Input: tx.Data(),
		},
		Receipt: &chain.Receipt{Logs: receipt.Logs},
	}, nil
}

// ReplaySource emits a fixed block sequence, for backfills and tests.
type ReplaySource struct {
	Blocks []*Block
}

// Run sends every block and returns.
func (s *ReplaySource) Run(ctx context.Context, out chan<- *Block) error {
	for _, b := range s.Blocks {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ BlockSource = (*RPCSource)(nil)
var _ BlockSource = (*ReplaySource)(nil)
