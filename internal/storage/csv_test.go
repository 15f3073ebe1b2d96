package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"ledgerScope/internal/model"
)

func sampleEvents() []model.DecodedEvent {
	first := model.DecodedEvent{
		BlockNumber:     10,
		BlockTimestamp:  100,
		TransactionHash: "0xaa",
		EventName:       "Transfer",
		ABIKind:         "sep20",
		ContractAddress: "0xc",
		Params: model.Params{
			{Name: "from", Type: "address", Value: "0x1"},
			{Name: "to", Type: "address", Value: "0x2"},
			{Name: "value", Type: "uint256", Value: big.NewInt(5)},
		},
	}
	second := first
	second.BlockNumber = 11
	second.Extras = model.Params{{Name: model.BalanceField, Type: "uint256", Value: big.NewInt(9)}}
	return []model.DecodedEvent{first, second}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}

func TestCSVSinkUnionHeader(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	if err := sink.WriteGroup(context.Background(), "<unknown>", sampleEvents()); err != nil {
		t.Fatalf("write: %v", err)
	}

	records := readCSV(t, filepath.Join(dir, "unknown.csv"))
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	header := records[0]
	tail := header[len(header)-4:]
	if !reflect.DeepEqual(tail, []string{"from(address)", "to(address)", "value(uint256)", "<balance>(uint256)"}) {
		t.Fatalf("unexpected header tail: %v", tail)
	}
	if header[0] != "blockTimestamp" {
		t.Fatalf("unexpected first column: %s", header[0])
	}
	if last := records[1][len(header)-1]; last != "" {
		t.Fatalf("missing cell should be empty, got %q", last)
	}
	if last := records[2][len(header)-1]; last != "9" {
		t.Fatalf("balance cell mismatch: %q", last)
	}
}

func TestWriteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "balances.csv")
	if err := WriteTable(path, []string{"address", "balance"}, [][]string{{"0x1", "10"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if records := readCSV(t, path); !reflect.DeepEqual(records, [][]string{{"address", "balance"}, {"0x1", "10"}}) {
		t.Fatalf("unexpected table: %v", records)
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"Transfer":         "Transfer",
		"flexUSD.Transfer": "flexUSD.Transfer",
		"<unknown>":        "unknown",
		"Wrapped BCH.Swap": "Wrapped_BCH.Swap",
		"../etc/passwd":    "etcpasswd",
		"":                 "events",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Fatalf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingSink struct {
	keys []string
	err  error
}

func (s *recordingSink) WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error {
	s.keys = append(s.keys, key)
	return s.err
}

func TestMultiSinkWritesEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	err := MultiSink{failing, ok}.WriteGroup(context.Background(), "Transfer", nil)
	if err == nil || len(ok.keys) != 1 {
		t.Fatalf("expected error and delivery to the healthy sink, got %v / %v", err, ok.keys)
	}
}

func TestJSONLEventSink(t *testing.T) {
	dir := t.TempDir()
	if err := NewJSONLEventSink(dir).WriteGroup(context.Background(), "Transfer", sampleEvents()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Transfer.jsonl"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}
