package replay

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"ledgerScope/internal/model"
)

const (
	EventTransfer         = "Transfer"
	EventChangeMultiplier = "ChangeMultiplier"
)

var (
	// ErrUnresolvedTimestamp is returned when a replayed event has no block timestamp.
	ErrUnresolvedTimestamp = errors.New("event has no block timestamp")
	// ErrInvalidMultiplier is returned for a ChangeMultiplier event without a positive multiplier.
	ErrInvalidMultiplier = errors.New("invalid multiplier")
)

// Result is the outcome of a replay.
type Result struct {
	// Events holds the input events followed by the synthetic ones, stably sorted by timestamp.
	Events []model.DecodedEvent
	// Balances are the final balances of the tracked addresses, keyed by lowercase address.
	Balances map[string]*big.Int
	// Synthetic holds only the generated interest events, in generation order.
	Synthetic []model.DecodedEvent
}

// Replay reconstructs the balances of tracked addresses on contract from its Transfer and
// ChangeMultiplier events and emits a synthetic Transfer for every balance change implied by a
// multiplier change. Events of other contracts or kinds pass through unchanged. The input slice
// is not modified.
func Replay(contract model.ContractInfo, tracked []string, events []model.DecodedEvent) (Result, error) {
	address := model.NormalizeAddress(contract.Address)
	accounts := normalizeTracked(tracked)

	balances := make(map[string]*big.Int, len(accounts))
	for _, account := range accounts {
		balances[account] = new(big.Int)
	}
	previous := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(contract.Decimals)), nil)

	out := make([]model.DecodedEvent, len(events))
	copy(out, events)
	for i := range out {
		out[i].Extras = append(model.Params(nil), out[i].Extras...)
	}

	order := make([]int, 0, len(out))
	for i := range out {
		if model.NormalizeAddress(out[i].ContractAddress) != address {
			continue
		}
		if out[i].EventName != EventTransfer && out[i].EventName != EventChangeMultiplier {
			continue
		}
		if out[i].IsSynthetic() || out[i].ABIKind == model.ABIKindUnknown {
			continue
		}
		if !out[i].HasTimestamp() {
			return Result{}, fmt.Errorf("%w: %s", ErrUnresolvedTimestamp, out[i].ID())
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out[order[a]].BlockTimestamp < out[order[b]].BlockTimestamp
	})

	var synthetic []model.DecodedEvent
	for _, i := range order {
		event := &out[i]
		switch event.EventName {
		case EventTransfer:
			if err := applyTransfer(event, balances); err != nil {
				return Result{}, err
			}
		case EventChangeMultiplier:
			multiplier, ok := event.Params.BigInt("multiplier")
			if !ok || multiplier.Sign() <= 0 {
				return Result{}, fmt.Errorf("%w: %s", ErrInvalidMultiplier, event.ID())
			}
			for _, account := range accounts {
				balance := balances[account]
				next := new(big.Int).Mul(balance, multiplier)
				next.Div(next, previous)
				delta := new(big.Int).Sub(next, balance)
				if delta.Sign() == 0 {
					continue
				}
				synthetic = append(synthetic, interestEvent(event, account, delta, next))
				balances[account] = next
			}
			previous = multiplier
		}
	}

	all := append(out, synthetic...)
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].BlockTimestamp < all[b].BlockTimestamp
	})

	final := make(map[string]*big.Int, len(balances))
	for account, balance := range balances {
		final[account] = new(big.Int).Set(balance)
	}
	return Result{Events: all, Balances: final, Synthetic: synthetic}, nil
}

func applyTransfer(event *model.DecodedEvent, balances map[string]*big.Int) error {
	from, okFrom := event.Params.Address("from")
	to, okTo := event.Params.Address("to")
	value, okValue := event.Params.BigInt("value")
	if !okFrom || !okTo || !okValue {
		return fmt.Errorf("transfer %s is missing from/to/value", event.ID())
	}
	if balance, ok := balances[from]; ok {
		balance.Sub(balance, value)
		event.SetExtra(model.BalanceField, "uint256", new(big.Int).Set(balance))
	}
	if balance, ok := balances[to]; ok {
		balance.Add(balance, value)
		event.SetExtra(model.BalanceField, "uint256", new(big.Int).Set(balance))
	}
	return nil
}

func interestEvent(source *model.DecodedEvent, account string, delta, balance *big.Int) model.DecodedEvent {
	return model.DecodedEvent{
		BlockNumber:      source.BlockNumber,
		BlockTimestamp:   source.BlockTimestamp,
		BlockDate:        source.BlockDate,
		LogIndex:         source.LogIndex,
		ContractAddress:  source.ContractAddress,
		ContractName:     source.ContractName,
		ContractSymbol:   source.ContractSymbol,
		ContractDecimals: source.ContractDecimals,
		EventName:        EventTransfer,
		ABIKind:          model.ABIKindSynthetic,
		Params: model.Params{
			{Name: "from", Type: "address", Value: ""},
			{Name: "to", Type: "address", Value: account},
			{Name: "value", Type: "uint256", Value: new(big.Int).Set(delta)},
		},
		Extras: model.Params{
			{Name: model.BalanceField, Type: "uint256", Value: new(big.Int).Set(balance)},
		},
	}
}

func normalizeTracked(tracked []string) []string {
	seen := make(map[string]struct{}, len(tracked))
	out := make([]string, 0, len(tracked))
	for _, account := range tracked {
		account = model.NormalizeAddress(account)
		if account == "" {
			continue
		}
		if _, ok := seen[account]; ok {
			continue
		}
		seen[account] = struct{}{}
		out = append(out, account)
	}
	return out
}
