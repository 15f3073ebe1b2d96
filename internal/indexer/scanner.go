package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"ledgerScope/internal/chain"
)

// DefaultWindow is the initial number of blocks per query.
const DefaultWindow uint64 = 100_000

// ScanConfig holds the adaptive window policy.
type ScanConfig struct {
	// DefaultWindow is the window used at start and after every query that returned matches.
	DefaultWindow uint64
	// GrowthFactor multiplies the window after an empty query.
	GrowthFactor uint64
	// MaxGrowth caps the accumulated multiplier.
	MaxGrowth    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultScanConfig returns the policy used against smartBCH nodes.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		DefaultWindow: DefaultWindow,
		GrowthFactor:  50,
		MaxGrowth:     10_000,
		MaxRetries:    5,
		RetryBackoff:  500 * time.Millisecond,
	}
}

// Scanner retrieves every matching item of a block range with as many bounded queries as needed.
type Scanner struct {
	cfg    ScanConfig
	logger *zap.Logger
}

// NewScanner builds a Scanner, filling unset policy fields with defaults.
func NewScanner(cfg ScanConfig, logger *zap.Logger) *Scanner {
	defaults := DefaultScanConfig()
	if cfg.DefaultWindow == 0 {
		cfg.DefaultWindow = defaults.DefaultWindow
	}
	if cfg.GrowthFactor == 0 {
		cfg.GrowthFactor = 1
	}
	if cfg.MaxGrowth == 0 {
		cfg.MaxGrowth = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// Config returns the effective policy.
func (s *Scanner) Config() ScanConfig {
	return s.cfg
}

// FetchFunc queries one inclusive window.
type FetchFunc[T any] func(ctx context.Context, fromBlock, toBlock uint64) ([]T, error)

// WindowFunc observes the new items of each completed window. An error aborts the scan.
type WindowFunc[T any] func(window BlockRange, items []T) error

// Scan walks r forward in adaptive windows and returns every item once, deduplicated by key.
//
// A size-limit refusal halves the window and retries the same sub-range. An empty window grows
// the next one geometrically; a window with matches resets it to the default size. On cancellation
// the items collected so far are returned together with the context error.
func Scan[T any](ctx context.Context, s *Scanner, r BlockRange, fetch FetchFunc[T], key func(T) string, onWindow WindowFunc[T]) ([]T, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var (
		out    []T
		seen   = make(map[string]struct{})
		window = s.cfg.DefaultWindow
		growth = uint64(1)
		from   = r.From
	)

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		size := saturatingMul(window, growth)
		to := r.To
		if size-1 < r.To-from {
			to = from + size - 1
		}

		var items []T
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			items, err = fetch(ctx, from, to)
			if err != nil && isRetryable(err) {
				s.logger.Warn("window query failed", zap.Error(err), zap.Uint64("from", from), zap.Uint64("to", to))
			}
			return err
		})
		if err != nil {
			if errors.Is(err, chain.ErrResultSizeExceeded) {
				if to == from {
					return out, fmt.Errorf("%w: block %d: %v", ErrWindowExhausted, from, err)
				}
				window = (to - from + 1) / 2
				growth = 1
				s.logger.Debug("shrink window", zap.Uint64("from", from), zap.Uint64("to", to), zap.Uint64("window", window))
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			return out, fmt.Errorf("blocks %d-%d: %w", from, to, err)
		}

		fresh := make([]T, 0, len(items))
		for _, item := range items {
			k := key(item)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			fresh = append(fresh, item)
		}
		out = append(out, fresh...)

		if onWindow != nil {
			if err := onWindow(BlockRange{From: from, To: to}, fresh); err != nil {
				return out, err
			}
		}

		if len(items) == 0 {
			growth = saturatingMul(growth, s.cfg.GrowthFactor)
			if growth > s.cfg.MaxGrowth {
				growth = s.cfg.MaxGrowth
			}
		} else {
			window = s.cfg.DefaultWindow
			growth = 1
		}

		if to >= r.To {
			return out, nil
		}
		from = to + 1
	}
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}
