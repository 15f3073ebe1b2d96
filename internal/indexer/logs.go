package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledgerScope/internal/model"
)

// LogSource is the part of the node the log scanner talks to.
type LogSource interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// LogKey identifies a log by transaction hash and log index.
func LogKey(log types.Log) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(log.TxHash.Hex()), log.Index)
}

// ScanLogs returns every log matching filter within r.
func (s *Scanner) ScanLogs(ctx context.Context, source LogSource, filter model.LogFilter, r BlockRange) ([]types.Log, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	fetch := func(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
		return source.FilterLogs(ctx, filter.Query(fromBlock, toBlock))
	}
	return Scan(ctx, s, r, fetch, LogKey, nil)
}

// FilterResult is the outcome of scanning one filter.
type FilterResult struct {
	Filter model.LogFilter
	Logs   []types.Log
	Err    error
}

// ScanFilters scans independent filters concurrently. Each filter keeps its own sequential window
// sequence. Non-fatal failures are reported per filter; a fatal one cancels the rest and is returned.
func (s *Scanner) ScanFilters(ctx context.Context, source LogSource, filters []model.LogFilter, r BlockRange, concurrency int) ([]FilterResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	results := make([]FilterResult, len(filters))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, filter := range filters {
		i, filter := i, filter
		g.Go(func() error {
			logs, err := s.ScanLogs(gctx, source, filter, r)
			results[i] = FilterResult{Filter: filter, Logs: logs, Err: err}
			if err != nil {
				if IsFatal(err) {
					return fmt.Errorf("filter %s: %w", filter, err)
				}
				s.logger.Warn("filter scan incomplete", zap.String("filter", filter.String()), zap.Int("logs", len(logs)), zap.Error(err))
				return nil
			}
			s.logger.Info("filter scanned", zap.String("filter", filter.String()), zap.Int("logs", len(logs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// LogSet collects logs from several sources, keeping each (txHash, logIndex) once.
type LogSet struct {
	seen map[string]struct{}
	logs []types.Log
}

// NewLogSet returns an empty LogSet.
func NewLogSet() *LogSet {
	return &LogSet{seen: make(map[string]struct{})}
}

// Add inserts logs not seen before and returns how many were new.
func (s *LogSet) Add(logs ...types.Log) int {
	added := 0
	for _, log := range logs {
		key := LogKey(log)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.logs = append(s.logs, log)
		added++
	}
	return added
}

// Len returns the number of distinct logs.
func (s *LogSet) Len() int {
	return len(s.logs)
}

// Logs returns the collected logs in chain order.
func (s *LogSet) Logs() []types.Log {
	out := make([]types.Log, len(s.logs))
	copy(out, s.logs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// TxSource is the part of the node used to find transactions of an account and their logs.
type TxSource interface {
	QueryTxByAddr(ctx context.Context, address common.Address, fromBlock, toBlock, limit uint64) ([]model.TxRecord, error)
	TransactionReceiptLogs(ctx context.Context, txHash string) ([]types.Log, error)
}

// ScanTxs returns every transaction touching account within r.
func (s *Scanner) ScanTxs(ctx context.Context, source TxSource, account common.Address, r BlockRange) ([]model.TxRecord, error) {
	fetch := func(ctx context.Context, fromBlock, toBlock uint64) ([]model.TxRecord, error) {
		return source.QueryTxByAddr(ctx, account, fromBlock, toBlock, 0)
	}
	key := func(tx model.TxRecord) string { return tx.Key() }
	return Scan(ctx, s, r, fetch, key, nil)
}

// ReceiptLogs fetches the logs of each transaction, retrying transient failures.
func (s *Scanner) ReceiptLogs(ctx context.Context, source TxSource, txs []model.TxRecord) ([]types.Log, error) {
	var out []types.Log
	for _, tx := range txs {
		var logs []types.Log
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			logs, err = source.TransactionReceiptLogs(ctx, tx.TxHash)
			return err
		})
		if err != nil {
			return out, fmt.Errorf("receipt %s: %w", tx.TxHash, err)
		}
		out = append(out, logs...)
	}
	return out, nil
}
