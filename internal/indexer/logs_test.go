package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"ledgerScope/internal/model"
)

func TestLogSetKeepsEachLogOnce(t *testing.T) {
	fromReceipts := []types.Log{testLog(10, 0), testLog(10, 1), testLog(3, 0)}
	fromGetLogs := []types.Log{testLog(10, 1), testLog(3, 0), testLog(20, 2)}

	set := NewLogSet()
	if added := set.Add(fromReceipts...); added != 3 {
		t.Fatalf("expected 3 new logs, got %d", added)
	}
	if added := set.Add(fromGetLogs...); added != 1 {
		t.Fatalf("expected 1 new log, got %d", added)
	}

	logs := set.Logs()
	if len(logs) != 4 {
		t.Fatalf("expected 4 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 3 || logs[3].BlockNumber != 20 {
		t.Fatalf("logs not in chain order: %+v", logs)
	}
	if logs[1].Index != 0 || logs[2].Index != 1 {
		t.Fatalf("same-block logs not ordered by index")
	}
}

func TestAccountFiltersTopicLayout(t *testing.T) {
	a := common.HexToAddress("0x9f20a29cb0615d37dba2ad7a2679e4cb09a5cf11")
	b := common.HexToAddress("0x1111111111111111111111111111111111111111")
	filters := AccountFilters([]common.Address{a, b})
	if len(filters) != 3 {
		t.Fatalf("expected 3 filters, got %d", len(filters))
	}
	for i, filter := range filters {
		slot := i + 1
		if filter.Contract != nil {
			t.Fatalf("account filters must match any contract")
		}
		if len(filter.Topics) != slot+1 {
			t.Fatalf("filter %d has %d slots", i, len(filter.Topics))
		}
		for j := 0; j < slot; j++ {
			if len(filter.Topics[j]) != 0 {
				t.Fatalf("slot %d of filter %d should be a wildcard", j, i)
			}
		}
		if len(filter.Topics[slot]) != 2 || TopicAddress(filter.Topics[slot][0]) != a {
			t.Fatalf("slot %d should hold the account topics", slot)
		}
		if err := filter.Validate(); err != nil {
			t.Fatalf("filter %d invalid: %v", i, err)
		}
	}
	if AddressTopic(a).Hex() != "0x0000000000000000000000009f20a29cb0615d37dba2ad7a2679e4cb09a5cf11" {
		t.Fatalf("unexpected topic: %s", AddressTopic(a).Hex())
	}
}

func TestContractFilters(t *testing.T) {
	c1 := common.HexToAddress("0x7b2b3c5308ab5b2a1d9a94d20d35ccdf61e05b72")
	c2 := common.HexToAddress("0x7642df81b5beaeeb331cc5a104bd13ba68c34b91")
	topic := crypto.Keccak256Hash([]byte("ChangeMultiplier(uint256)"))

	filters := ContractFilters([]common.Address{c1, c2}, []common.Hash{topic})
	if len(filters) != 2 || *filters[0].Contract != c1 || *filters[1].Contract != c2 {
		t.Fatalf("unexpected filters: %+v", filters)
	}
	if filters[0].Topics[0][0] != topic {
		t.Fatalf("topic0 restriction missing")
	}
	if got := ContractFilters(nil, nil); got != nil {
		t.Fatalf("expected no filters, got %+v", got)
	}
	if got := ContractFilters(nil, []common.Hash{topic}); len(got) != 1 || got[0].Contract != nil {
		t.Fatalf("topic-only filter mismatch: %+v", got)
	}
}

func TestParseTopic0AcceptsSignatures(t *testing.T) {
	topics, err := ParseTopic0([]string{"ChangeMultiplier(uint256)", crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if topics[0] != crypto.Keccak256Hash([]byte("ChangeMultiplier(uint256)")) {
		t.Fatalf("signature not hashed")
	}
	if _, err := ParseTopic0([]string{"0x1234"}); err == nil {
		t.Fatalf("expected error for short topic")
	}
}

func TestScanFiltersReportsPerFilterFailures(t *testing.T) {
	c1 := common.HexToAddress("0x7b2b3c5308ab5b2a1d9a94d20d35ccdf61e05b72")
	node := &fakeNode{logs: []types.Log{testLog(5, 0), testLog(6, 0)}}
	filters := []model.LogFilter{{Contract: &c1}, {}}

	results, err := NewScanner(fastConfig(), nil).ScanFilters(context.Background(), node, filters, BlockRange{From: 0, To: 100}, 2)
	if err != nil {
		t.Fatalf("scan filters: %v", err)
	}
	for _, result := range results {
		if result.Err != nil || len(result.Logs) != 2 {
			t.Fatalf("unexpected result: %+v", result)
		}
	}

	tooWide := model.LogFilter{Topics: make([][]common.Hash, 5)}
	_, err = NewScanner(fastConfig(), nil).ScanFilters(context.Background(), node, []model.LogFilter{tooWide}, BlockRange{From: 0, To: 100}, 1)
	if !errors.Is(err, ErrInvalidFilter) || !IsFatal(err) {
		t.Fatalf("expected fatal invalid filter, got %v", err)
	}
}

func TestScanFiltersDegradesOnTransportFailure(t *testing.T) {
	node := &fakeNode{failures: 1000, failErr: errors.New("timeout")}
	cfg := fastConfig()
	cfg.MaxRetries = 1

	results, err := NewScanner(cfg, nil).ScanFilters(context.Background(), node, []model.LogFilter{{}}, BlockRange{From: 0, To: 100}, 1)
	if err != nil {
		t.Fatalf("transport failures should not abort: %v", err)
	}
	if results[0].Err == nil {
		t.Fatalf("expected the filter to carry its error")
	}
}
