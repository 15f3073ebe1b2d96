package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	"ledgerScope/internal/model"
)

// AddressTopic left-pads an address to a 32-byte topic.
func AddressTopic(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

// TopicAddress takes the low 20 bytes of a topic.
func TopicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

// AccountFilters matches any log that carries one of the accounts as indexed argument 1, 2 or 3,
// whatever contract emitted it.
func AccountFilters(accounts []common.Address) []model.LogFilter {
	if len(accounts) == 0 {
		return nil
	}
	topics := make([]common.Hash, 0, len(accounts))
	for _, account := range accounts {
		topics = append(topics, AddressTopic(account))
	}

	filters := make([]model.LogFilter, 0, model.MaxTopicSlots-1)
	for slot := 1; slot < model.MaxTopicSlots; slot++ {
		pattern := make([][]common.Hash, slot+1)
		pattern[slot] = topics
		filters = append(filters, model.LogFilter{Topics: pattern})
	}
	return filters
}

// ContractFilters matches logs of each contract, restricted to the given topic0 values when present.
// Without contracts the topic0 restriction applies to every emitter.
func ContractFilters(contracts []common.Address, topic0 []common.Hash) []model.LogFilter {
	var pattern [][]common.Hash
	if len(topic0) > 0 {
		pattern = [][]common.Hash{topic0}
	}

	if len(contracts) == 0 {
		if pattern == nil {
			return nil
		}
		return []model.LogFilter{{Topics: pattern}}
	}

	filters := make([]model.LogFilter, 0, len(contracts))
	for i := range contracts {
		contract := contracts[i]
		filters = append(filters, model.LogFilter{Contract: &contract, Topics: pattern})
	}
	return filters
}
