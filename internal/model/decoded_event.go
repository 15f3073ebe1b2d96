package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ABIKindSynthetic marks events derived by balance replay rather than read from chain.
	ABIKindSynthetic = "<synthetic, interest payment>"
	// ABIKindUnknown marks logs no configured ABI could decode.
	ABIKindUnknown = "<unknown>"
	// EventUnknown is the event name of undecodable logs.
	EventUnknown = "<unknown>"
	// EventUnknownCall is the event name of transactions whose input no ABI could decode.
	EventUnknownCall = "<unknown call>"
	// SourceTransaction marks records built from a transaction input instead of a log.
	SourceTransaction = "tx"
	// BalanceField is the extra appended by balance replay.
	BalanceField = "<balance>"
	// UnresolvedTimestamp is the block timestamp of an event whose block was not looked up.
	UnresolvedTimestamp int64 = -1
)

// DecodedEvent is a decoded log (or a synthetic record) ready for replay and output.
type DecodedEvent struct {
	BlockNumber      uint64 `json:"block_number"`
	BlockTimestamp   int64  `json:"block_timestamp"`
	BlockDate        string `json:"block_date,omitempty"`
	TransactionHash  string `json:"transaction_hash"`
	TransactionIndex uint64 `json:"transaction_index"`
	LogIndex         uint64 `json:"log_index"`
	ContractAddress  string `json:"contract_address"`
	ContractName     string `json:"contract_name"`
	ContractSymbol   string `json:"contract_symbol"`
	ContractDecimals uint8  `json:"contract_decimals"`
	EventName        string `json:"event_name"`
	ABIKind          string `json:"abi"`
	Params           Params `json:"params"`
	Extras           Params `json:"extras,omitempty"`
	Text             string `json:"text,omitempty"`
	Source           string `json:"source,omitempty"`
}

// Column is one key/value cell of a flattened event row.
type Column struct {
	Key   string
	Value string
}

// HasTimestamp reports whether the block timestamp was resolved.
func (e *DecodedEvent) HasTimestamp() bool {
	return e.BlockTimestamp != UnresolvedTimestamp
}

// SetTimestamp sets the block timestamp and its ISO date rendering.
func (e *DecodedEvent) SetTimestamp(ts uint64) {
	e.BlockTimestamp = int64(ts)
	e.BlockDate = time.Unix(int64(ts), 0).UTC().Format("2006-01-02T15:04:05.000Z")
}

// SetExtra appends an auxiliary field, replacing an existing one with the same name.
func (e *DecodedEvent) SetExtra(name, typ string, value interface{}) {
	for i := range e.Extras {
		if e.Extras[i].Name == name {
			e.Extras[i] = Param{Name: name, Type: typ, Value: value}
			return
		}
	}
	e.Extras = append(e.Extras, Param{Name: name, Type: typ, Value: value})
}

// IsSynthetic reports whether the event was produced by balance replay.
func (e *DecodedEvent) IsSynthetic() bool {
	return e.ABIKind == ABIKindSynthetic
}

// ID is a stable identity used by sinks for idempotent writes.
func (e *DecodedEvent) ID() string {
	if e.Source == SourceTransaction {
		return "tx:" + strings.ToLower(e.TransactionHash)
	}
	if e.IsSynthetic() {
		to, _ := e.Params.Address("to")
		return fmt.Sprintf("synthetic:%s:%d:%d:%s", NormalizeAddress(e.ContractAddress), e.BlockNumber, e.LogIndex, to)
	}
	return fmt.Sprintf("%s:%d", strings.ToLower(e.TransactionHash), e.LogIndex)
}

// Row flattens the event into ordered columns.
func (e *DecodedEvent) Row() []Column {
	row := []Column{
		{Key: "blockTimestamp", Value: strconv.FormatInt(e.BlockTimestamp, 10)},
		{Key: "blockDate", Value: e.BlockDate},
		{Key: "blockNumber", Value: strconv.FormatUint(e.BlockNumber, 10)},
		{Key: "transactionHash", Value: e.TransactionHash},
		{Key: "transactionIndex", Value: strconv.FormatUint(e.TransactionIndex, 10)},
		{Key: "logIndex", Value: strconv.FormatUint(e.LogIndex, 10)},
		{Key: "abi", Value: e.ABIKind},
		{Key: "event_name", Value: e.EventName},
		{Key: "contract_address", Value: e.ContractAddress},
		{Key: "contract_name", Value: e.ContractName},
		{Key: "contract_symbol", Value: e.ContractSymbol},
	}
	for _, p := range e.Params {
		row = append(row, Column{Key: p.Column(), Value: p.String()})
	}
	for _, p := range e.Extras {
		row = append(row, Column{Key: p.Column(), Value: p.String()})
	}
	return row
}
