package aggregate

import (
	"ledgerScope/internal/decode"
	"ledgerScope/internal/model"
)

// DisplaySuffix is appended to a uint256 column name for its fixed-point rendering.
const DisplaySuffix = "_"

// ConvertValues adds a display extra for every uint256 param and extra of each event, scaled by
// the decimals of the event's contract and truncated to digits fractional digits. The raw
// integer values are kept. The input events are not modified.
func ConvertValues(events []model.DecodedEvent, digits int) []model.DecodedEvent {
	out := make([]model.DecodedEvent, len(events))
	for i, event := range events {
		event.Extras = append(model.Params(nil), event.Extras...)
		for _, p := range append(append(model.Params(nil), event.Params...), event.Extras...) {
			if p.Type != "uint256" {
				continue
			}
			value, ok := model.Params{p}.BigInt(p.Name)
			if !ok {
				continue
			}
			event.SetExtra(p.Column()+DisplaySuffix, "", decode.FormatFixed(value, int(event.ContractDecimals), digits))
		}
		out[i] = event
	}
	return out
}
