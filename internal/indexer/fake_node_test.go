package indexer

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ledgerScope/internal/chain"
)

// fakeNode serves logs from memory and refuses windows the way a capped node would.
type fakeNode struct {
	mu         sync.Mutex
	logs       []types.Log
	maxResults int
	refuse     func(from, to uint64) bool
	failures   int
	failErr    error
	calls      []BlockRange
	latest     uint64
}

func (n *fakeNode) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := query.FromBlock.Uint64(), query.ToBlock.Uint64()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, BlockRange{From: from, To: to})

	if n.failures > 0 {
		n.failures--
		return nil, chain.ClassifyError(n.failErr)
	}
	if n.refuse != nil && n.refuse(from, to) {
		return nil, chain.ErrResultSizeExceeded
	}

	var out []types.Log
	for _, log := range n.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if query.Addresses != nil && log.Address != query.Addresses[0] {
			continue
		}
		out = append(out, log)
	}
	if n.maxResults > 0 && len(out) > n.maxResults {
		return nil, chain.ErrResultSizeExceeded
	}
	return out, nil
}

func (n *fakeNode) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(10000), nil
}

func (n *fakeNode) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return n.latest, nil
}

func (n *fakeNode) windowSizes() []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]uint64, 0, len(n.calls))
	for _, call := range n.calls {
		out = append(out, call.Blocks())
	}
	return out
}

func testLog(block uint64, index uint) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x7b2b3c5308ab5b2a1d9a94d20d35ccdf61e05b72"),
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		Index:       index,
	}
}

func logKeys(logs []types.Log) map[string]struct{} {
	out := make(map[string]struct{}, len(logs))
	for _, log := range logs {
		out[LogKey(log)] = struct{}{}
	}
	return out
}
