package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		ChainID:     10000,
		BlockNumber: 1990000,
		BlockHash:   "0xabc123",
		TxHash:      "0xdef456",
		TxIndex:     7,
		LogIndex:    12,
		Address:     "0x7b2b3c5308ab5b2a1d9a94d20d35ccdf61e05b72",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Removed:     false,
		IngestedAt:  "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestLogRecordKeyIgnoresHashCase(t *testing.T) {
	a := LogRecord{TxHash: "0xABCDEF", LogIndex: 4}
	b := LogRecord{TxHash: "0xabcdef", LogIndex: 4}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s != %s", a.Key(), b.Key())
	}
}
