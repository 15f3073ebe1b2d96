package decode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ledgerScope/internal/model"
)

var errNoTopics = errors.New("log has no topics")

// Format controls how decoded values are rendered. It is fixed when the Decoder is built.
type Format struct {
	// FractionDigits is the number of fractional digits of fixed-point renderings.
	FractionDigits int
	// ScaleUint256 renders uint256 values divided by 10^decimals of the contract.
	ScaleUint256 bool
}

// DefaultFormat renders uint256 values as 18-digit fixed point.
func DefaultFormat() Format {
	return Format{FractionDigits: 18, ScaleUint256: true}
}

// Decoder turns raw logs and call inputs into named, typed parameters using registry ABIs.
type Decoder struct {
	registry *Registry
	format   Format
}

// NewDecoder builds a Decoder with an immutable output format. Negative fraction digits mean 0.
func NewDecoder(registry *Registry, format Format) *Decoder {
	if format.FractionDigits < 0 {
		format.FractionDigits = 0
	}
	return &Decoder{registry: registry, format: format}
}

// Format returns the rendering settings of the decoder.
func (d *Decoder) Format() Format {
	return d.format
}

// DecodeLog decodes log with the ABIs of contract, tried in the order listed. The first ABI
// producing a structurally valid decode wins. When none does, the returned event is marked
// unknown and only carries the identifying fields of the log.
func (d *Decoder) DecodeLog(contract model.ContractInfo, log model.LogRecord) model.DecodedEvent {
	event := model.DecodedEvent{
		BlockNumber:      log.BlockNumber,
		BlockTimestamp:   model.UnresolvedTimestamp,
		TransactionHash:  strings.ToLower(log.TxHash),
		TransactionIndex: log.TxIndex,
		LogIndex:         log.LogIndex,
		ContractAddress:  model.NormalizeAddress(log.Address),
		ContractName:     contract.Name,
		ContractSymbol:   contract.Symbol,
		ContractDecimals: contract.Decimals,
		EventName:        model.EventUnknown,
		ABIKind:          model.ABIKindUnknown,
	}

	topics, data, err := rawLogParts(log)
	if err != nil {
		return event
	}
	for _, name := range contract.ABINames {
		parsed, ok := d.registry.Get(name)
		if !ok {
			continue
		}
		decoded, params, err := decodeEvent(parsed, topics, data)
		if err != nil {
			continue
		}
		event.EventName = decoded.Name
		event.ABIKind = normalizeName(name)
		event.Params = params
		event.Text = d.Render(decoded.Name, params, contract.Decimals)
		return event
	}
	return event
}

// Call is a decoded transaction input.
type Call struct {
	ABIKind string       `json:"abi"`
	Method  string       `json:"method"`
	Params  model.Params `json:"params"`
}

// DecodeCallInput resolves the 4-byte selector of input against abiNames in order and unpacks
// the arguments. It returns nil when no ABI knows the selector.
func (d *Decoder) DecodeCallInput(abiNames []string, input []byte) *Call {
	if len(input) < 4 {
		return nil
	}
	for _, name := range abiNames {
		parsed, ok := d.registry.Get(name)
		if !ok {
			continue
		}
		method, err := parsed.MethodById(input[:4])
		if err != nil {
			continue
		}
		inputs := namedArguments(method.Inputs)
		values, err := inputs.Unpack(input[4:])
		if err != nil || len(values) != len(inputs) {
			continue
		}
		params := make(model.Params, 0, len(inputs))
		for i, arg := range inputs {
			params = append(params, model.Param{Name: arg.Name, Type: arg.Type.String(), Value: values[i]})
		}
		return &Call{ABIKind: normalizeName(name), Method: method.RawName, Params: params}
	}
	return nil
}

// Render builds "name(a:type = v, b:type = v)" in declaration order.
func (d *Decoder) Render(name string, params model.Params, decimals uint8) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%s:%s = %s", p.Name, p.Type, d.renderValue(p, decimals)))
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

func (d *Decoder) renderValue(p model.Param, decimals uint8) string {
	if d.format.ScaleUint256 && p.Type == "uint256" {
		if v, ok := (model.Params{p}).BigInt(p.Name); ok {
			return FormatFixed(v, int(decimals), d.format.FractionDigits)
		}
	}
	return p.String()
}

func decodeEvent(parsed abi.ABI, topics []common.Hash, data []byte) (*abi.Event, model.Params, error) {
	if len(topics) == 0 {
		return nil, nil, errNoTopics
	}
	event, err := parsed.EventByID(topics[0])
	if err != nil {
		return nil, nil, err
	}

	inputs := namedArguments(event.Inputs)
	var indexed abi.Arguments
	for _, arg := range inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) != len(topics)-1 {
		return nil, nil, fmt.Errorf("event %s expects %d indexed topics, log has %d", event.Name, len(indexed), len(topics)-1)
	}

	indexedValues := make(map[string]interface{}, len(indexed))
	if err := abi.ParseTopicsIntoMap(indexedValues, indexed, topics[1:]); err != nil {
		return nil, nil, fmt.Errorf("parse topics: %w", err)
	}
	nonIndexed := inputs.NonIndexed()
	values, err := nonIndexed.Unpack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack data: %w", err)
	}
	if len(values) != len(nonIndexed) {
		return nil, nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	params := make(model.Params, 0, len(inputs))
	next := 0
	for _, arg := range inputs {
		var value interface{}
		if arg.Indexed {
			value = indexedValues[arg.Name]
		} else {
			value = values[next]
			next++
		}
		params = append(params, model.Param{Name: arg.Name, Type: arg.Type.String(), Value: value})
	}
	return event, params, nil
}

// namedArguments copies args, naming anonymous ones after their position.
func namedArguments(args abi.Arguments) abi.Arguments {
	out := make(abi.Arguments, len(args))
	copy(out, args)
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = fmt.Sprintf("arg%d", i)
		}
	}
	return out
}

func rawLogParts(log model.LogRecord) ([]common.Hash, []byte, error) {
	topics := make([]common.Hash, 0, len(log.Topics))
	for _, topic := range log.Topics {
		raw, err := hexutil.Decode(topic)
		if err != nil || len(raw) != common.HashLength {
			return nil, nil, fmt.Errorf("invalid topic: %s", topic)
		}
		topics = append(topics, common.BytesToHash(raw))
	}
	if log.Data == "" || log.Data == "0x" {
		return topics, nil, nil
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid data: %w", err)
	}
	return topics, data, nil
}
