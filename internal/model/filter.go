package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// MaxTopicSlots is the number of positional topics an EVM log query accepts.
const MaxTopicSlots = 4

// LogFilter is one element of an address filter set. A nil Contract matches any emitter,
// an empty topic slot matches any value and several hashes in one slot are OR'ed.
type LogFilter struct {
	Contract *common.Address
	Topics   [][]common.Hash
}

// Validate checks the filter against the node's positional topic limit.
func (f LogFilter) Validate() error {
	if len(f.Topics) > MaxTopicSlots {
		return fmt.Errorf("topic pattern has %d slots, max %d", len(f.Topics), MaxTopicSlots)
	}
	return nil
}

// Query builds an eth_getLogs query for the inclusive block range.
func (f LogFilter) Query(fromBlock, toBlock uint64) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
	}
	if f.Contract != nil {
		query.Addresses = []common.Address{*f.Contract}
	}
	if len(f.Topics) > 0 {
		query.Topics = f.Topics
	}
	return query
}

func (f LogFilter) String() string {
	contract := "*"
	if f.Contract != nil {
		contract = strings.ToLower(f.Contract.Hex())
	}
	slots := make([]string, 0, len(f.Topics))
	for _, slot := range f.Topics {
		switch len(slot) {
		case 0:
			slots = append(slots, "*")
		case 1:
			slots = append(slots, slot[0].Hex()[:10])
		default:
			slots = append(slots, fmt.Sprintf("any(%d)", len(slot)))
		}
	}
	return contract + "[" + strings.Join(slots, ",") + "]"
}
