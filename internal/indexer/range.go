package indexer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned for a scan whose start is after its end.
	ErrInvalidRange = errors.New("invalid block range")
	// ErrInvalidFilter is returned for a topic pattern the node cannot accept.
	ErrInvalidFilter = errors.New("invalid log filter")
	// ErrWindowExhausted is returned when a single-block window still exceeds the node's result limit.
	ErrWindowExhausted = errors.New("window cannot shrink below one block")
)

// IsFatal reports whether err must abort the whole extraction instead of degrading to partial results.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidRange) || errors.Is(err, ErrInvalidFilter) || errors.Is(err, ErrWindowExhausted)
}

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Validate checks that the range is not inverted.
func (r BlockRange) Validate() error {
	if r.To < r.From {
		return fmt.Errorf("%w: from %d > to %d", ErrInvalidRange, r.From, r.To)
	}
	return nil
}

// Blocks returns the number of blocks in the range.
func (r BlockRange) Blocks() uint64 {
	return r.To - r.From + 1
}
