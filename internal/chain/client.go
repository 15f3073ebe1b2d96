package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"ledgerScope/internal/model"
)

// Client wraps go-ethereum RPC and the smartBCH-specific methods the extractor needs.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs runs eth_getLogs. Size-limit refusals come back as ErrResultSizeExceeded.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return logs, nil
}

type rpcTransaction struct {
	Hash             common.Hash     `json:"hash"`
	BlockNumber      hexutil.Uint64  `json:"blockNumber"`
	TransactionIndex hexutil.Uint64  `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Input            hexutil.Bytes   `json:"input"`
	Value            *hexutil.Big    `json:"value"`
}

// QueryTxByAddr runs sbch_queryTxByAddr over the inclusive range. A limit of 0 means unrestricted.
func (c *Client) QueryTxByAddr(ctx context.Context, address common.Address, fromBlock, toBlock, limit uint64) ([]model.TxRecord, error) {
	var raw []rpcTransaction
	err := c.rpcClient.CallContext(ctx, &raw, "sbch_queryTxByAddr",
		address,
		hexutil.Uint64(fromBlock),
		hexutil.Uint64(toBlock),
		hexutil.Uint64(limit),
	)
	if err != nil {
		return nil, ClassifyError(err)
	}

	txs := make([]model.TxRecord, 0, len(raw))
	for _, tx := range raw {
		record := model.TxRecord{
			BlockNumber: uint64(tx.BlockNumber),
			TxHash:      tx.Hash.Hex(),
			TxIndex:     uint64(tx.TransactionIndex),
			From:        model.NormalizeAddress(tx.From.Hex()),
			Input:       hexutil.Encode(tx.Input),
			Value:       "0",
		}
		if tx.To != nil {
			record.To = model.NormalizeAddress(tx.To.Hex())
		}
		if tx.Value != nil {
			record.Value = tx.Value.ToInt().String()
		}
		txs = append(txs, record)
	}
	return txs, nil
}

// TransactionReceiptLogs returns the logs emitted by a transaction.
func (c *Client) TransactionReceiptLogs(ctx context.Context, txHash string) ([]types.Log, error) {
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		return nil, fmt.Errorf("invalid tx hash: %s", txHash)
	}
	receipt, err := c.ethClient.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	logs := make([]types.Log, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		if log != nil {
			logs = append(logs, *log)
		}
	}
	return logs, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
