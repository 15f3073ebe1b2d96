package aggregate

import (
	"ledgerScope/internal/model"
)

// KeyFunc maps an event to the name of its output group.
type KeyFunc func(event model.DecodedEvent) string

// KeyByKind groups events by event name.
func KeyByKind(event model.DecodedEvent) string {
	return event.EventName
}

// KeyByKindAndContract groups events by contract and event name, for one partition per contract.
func KeyByKindAndContract(event model.DecodedEvent) string {
	contract := event.ContractName
	if contract == "" {
		contract = event.ContractSymbol
	}
	if contract == "" {
		contract = model.NormalizeAddress(event.ContractAddress)
	}
	return contract + "." + event.EventName
}

// Group is one named partition of the event stream.
type Group struct {
	Key    string
	Events []model.DecodedEvent
}

// Groups are ordered by the first appearance of each key.
type Groups []Group

// Get returns the events of key.
func (g Groups) Get(key string) ([]model.DecodedEvent, bool) {
	for _, group := range g {
		if group.Key == key {
			return group.Events, true
		}
	}
	return nil, false
}

// Keys lists the group keys in order.
func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for _, group := range g {
		keys = append(keys, group.Key)
	}
	return keys
}

// Len returns the number of events over all groups.
func (g Groups) Len() int {
	n := 0
	for _, group := range g {
		n += len(group.Events)
	}
	return n
}

// GroupBy partitions events by key, keeping the relative order of events within each group.
func GroupBy(events []model.DecodedEvent, key KeyFunc) Groups {
	if key == nil {
		key = KeyByKind
	}
	index := make(map[string]int)
	var groups Groups
	for _, event := range events {
		k := key(event)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Events = append(groups[i].Events, event)
	}
	return groups
}
