package storage

import (
	"context"
	"errors"
	"strings"

	"ledgerScope/internal/model"
)

// Storage defines a sink for raw log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// EventSink receives one named group of decoded events at a time.
type EventSink interface {
	WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error
}

// MultiSink writes every group to each sink in turn and joins their errors.
type MultiSink []EventSink

func (m MultiSink) WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.WriteGroup(ctx, key, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SafeName turns a group key into a file or topic name: characters outside [A-Za-z0-9._-] are
// dropped, an empty result becomes "events".
func SafeName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == ',':
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "events"
	}
	return name
}
