package model

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewDecodeError(t *testing.T) {
	record := LogRecord{
		ChainID:     10000,
		BlockNumber: 42,
		TxHash:      "0xabc",
		LogIndex:    3,
		Address:     "0xAbCd000000000000000000000000000000000001",
		Topics:      []string{"0xddf2"},
	}

	got := NewDecodeError(record, []string{"sep20"}, errors.New("no match"))
	want := DecodeError{
		ChainID:     10000,
		BlockNumber: 42,
		TxHash:      "0xabc",
		LogIndex:    3,
		Address:     "0xabcd000000000000000000000000000000000001",
		Topic0:      "0xddf2",
		ABINames:    []string{"sep20"},
		Error:       "no match",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected decode error: %+v", got)
	}
}
