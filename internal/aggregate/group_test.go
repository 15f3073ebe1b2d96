package aggregate

import (
	"math/big"
	"reflect"
	"testing"

	"ledgerScope/internal/model"
)

func event(name, contract string, logIndex uint64) model.DecodedEvent {
	return model.DecodedEvent{EventName: name, ContractName: contract, LogIndex: logIndex}
}

func logIndexes(events []model.DecodedEvent) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, e := range events {
		out = append(out, e.LogIndex)
	}
	return out
}

func TestGroupByKindKeepsOrder(t *testing.T) {
	events := []model.DecodedEvent{
		event("Transfer", "flexUSD", 0),
		event("ChangeMultiplier", "flexUSD", 1),
		event("Transfer", "WBCH", 2),
		event(model.EventUnknown, "", 3),
		event("Transfer", "flexUSD", 4),
	}
	groups := GroupBy(events, KeyByKind)

	if !reflect.DeepEqual(groups.Keys(), []string{"Transfer", "ChangeMultiplier", model.EventUnknown}) {
		t.Fatalf("unexpected keys: %v", groups.Keys())
	}
	transfers, _ := groups.Get("Transfer")
	if !reflect.DeepEqual(logIndexes(transfers), []uint64{0, 2, 4}) {
		t.Fatalf("transfer order mismatch: %v", logIndexes(transfers))
	}
	if groups.Len() != len(events) {
		t.Fatalf("events lost: %d", groups.Len())
	}
}

func TestGroupByKindAndContract(t *testing.T) {
	events := []model.DecodedEvent{
		event("Transfer", "flexUSD", 0),
		event("Transfer", "WBCH", 1),
		{EventName: "Transfer", ContractAddress: "0xABC", LogIndex: 2},
	}
	groups := GroupBy(events, KeyByKindAndContract)
	want := []string{"flexUSD.Transfer", "WBCH.Transfer", "0xabc.Transfer"}
	if !reflect.DeepEqual(groups.Keys(), want) {
		t.Fatalf("unexpected keys: %v", groups.Keys())
	}
	if _, ok := groups.Get("missing"); ok {
		t.Fatalf("unexpected group")
	}
}

func TestConvertValuesAddsDisplayColumns(t *testing.T) {
	value, _ := new(big.Int).SetString("1234567890000000000", 10)
	in := []model.DecodedEvent{{
		EventName:        "Transfer",
		ContractDecimals: 18,
		Params: model.Params{
			{Name: "from", Type: "address", Value: "0x1"},
			{Name: "value", Type: "uint256", Value: value},
		},
		Extras: model.Params{{Name: model.BalanceField, Type: "uint256", Value: big.NewInt(5)}},
	}}

	out := ConvertValues(in, 4)
	extras := out[0].Extras
	if len(extras) != 3 {
		t.Fatalf("expected 3 extras, got %+v", extras)
	}
	if p, ok := extras.Get("value(uint256)_"); !ok || p.String() != "1.2345" {
		t.Fatalf("value display mismatch: %+v", p)
	}
	if p, ok := extras.Get("<balance>(uint256)_"); !ok || p.String() != "0.0000" {
		t.Fatalf("balance display mismatch: %+v", p)
	}
	if raw, _ := out[0].Params.BigInt("value"); raw.Cmp(value) != 0 {
		t.Fatalf("raw value changed: %s", raw)
	}
	if len(in[0].Extras) != 1 {
		t.Fatalf("input was modified")
	}

	row := out[0].Row()
	if row[len(row)-2].Key != "value(uint256)_" || row[len(row)-1].Key != "<balance>(uint256)_" {
		t.Fatalf("unexpected trailing columns: %+v", row[len(row)-2:])
	}
}
