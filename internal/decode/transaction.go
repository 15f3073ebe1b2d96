package decode

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"ledgerScope/internal/model"
)

// DecodeTransaction renders a transaction sent to contract as an event-shaped record named after
// the called method. Inputs no ABI of contract understands yield EventUnknownCall.
func (d *Decoder) DecodeTransaction(contract model.ContractInfo, tx model.TxRecord) model.DecodedEvent {
	event := model.DecodedEvent{
		BlockNumber:      tx.BlockNumber,
		BlockTimestamp:   model.UnresolvedTimestamp,
		TransactionHash:  strings.ToLower(tx.TxHash),
		TransactionIndex: tx.TxIndex,
		ContractAddress:  model.NormalizeAddress(tx.To),
		ContractName:     contract.Name,
		ContractSymbol:   contract.Symbol,
		ContractDecimals: contract.Decimals,
		EventName:        model.EventUnknownCall,
		ABIKind:          model.ABIKindUnknown,
		Source:           model.SourceTransaction,
	}

	if input, err := hexutil.Decode(tx.Input); err == nil {
		if call := d.DecodeCallInput(contract.ABINames, input); call != nil {
			event.EventName = call.Method
			event.ABIKind = call.ABIKind
			event.Params = call.Params
			event.Text = d.Render(call.Method, call.Params, contract.Decimals)
		}
	}

	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		value = new(big.Int)
	}
	event.SetExtra("tx_from", "address", model.NormalizeAddress(tx.From))
	event.SetExtra("tx_value", "uint256", value)
	return event
}
