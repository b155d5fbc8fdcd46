package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	apierrors "github.com/chainscope/chainscope/internal/pkg/errors"
)

// Block is the subset of an eth_getBlockByNumber response the pipeline needs.
type Block struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// Transaction is the subset of an eth_getTransactionByHash response the
// deployment resolver needs.
type Transaction struct {
	Hash        common.Hash  `json:"hash"`
	BlockNumber *hexutil.Big `json:"blockNumber"`
}

// LogFilter describes an eth_getLogs query over a closed block range.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
	Topics    [][]common.Hash
}

func (f LogFilter) toParam() map[string]any {
	param := map[string]any{
		"fromBlock": hexutil.Uint64(f.FromBlock).String(),
		"toBlock":   hexutil.Uint64(f.ToBlock).String(),
	}
	if len(f.Addresses) > 0 {
		param["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		param["topics"] = f.Topics
	}
	return param
}

// BlockNumber returns the current head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var out hexutil.Uint64
	if err := c.Call(ctx, &out, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// BlockByNumber fetches one block header. Transaction bodies are never
// requested; the pipeline only needs timestamps.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var out Block
	if err := c.Call(ctx, &out, "eth_getBlockByNumber", hexutil.Uint64(number).String(), false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs fetches event logs for the filter.
func (c *Client) Logs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	var out []types.Log
	err := c.Call(ctx, &out, "eth_getLogs", filter.toParam())
	if apierrors.IsNoData(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Code returns the runtime bytecode at addr, "0x" for an EOA.
func (c *Client) Code(ctx context.Context, addr common.Address) (string, error) {
	var out string
	if err := c.Call(ctx, &out, "eth_getCode", addr, "latest"); err != nil {
		return "", err
	}
	return out, nil
}

// Balance returns the native balance of addr at head.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out hexutil.Big
	if err := c.Call(ctx, &out, "eth_getBalance", addr, "latest"); err != nil {
		return nil, err
	}
	return (*big.Int)(&out), nil
}

// TransactionByHash resolves a transaction to its inclusion block.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var out Transaction
	if err := c.Call(ctx, &out, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionReceipt returns the receipt for a transaction hash.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var out types.Receipt
	if err := c.Call(ctx, &out, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallContract performs a read-only eth_call against to with calldata data.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	msg := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if err := c.Call(ctx, &out, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}
