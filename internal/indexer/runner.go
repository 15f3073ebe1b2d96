package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"ledgerScope/internal/model"
	"ledgerScope/internal/storage"
)

// RunConfig holds runtime settings for the raw log scan.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Filters           []model.LogFilter
	Scan              ScanConfig
	CheckpointPath    string
	CheckpointEnabled bool
}

// Node is what the runner needs from the chain client.
type Node interface {
	LogSource
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Runner scans logs for a filter set window by window and writes them to storage.
type Runner struct {
	cfg        RunConfig
	node       Node
	storage    storage.Storage
	logger     *zap.Logger
	scanner    *Scanner
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, node Node, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		node:       node,
		storage:    storageSink,
		logger:     logger,
		scanner:    NewScanner(cfg.Scan, logger),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the scan loop. Every window is written before the checkpoint moves past it.
func (r *Runner) Run(ctx context.Context) error {
	if r.node == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if len(r.cfg.Filters) == 0 {
		return fmt.Errorf("at least one filter is required")
	}
	for _, filter := range r.cfg.Filters {
		if err := filter.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}

	chainID, err := r.node.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.node.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	fingerprint := filterFingerprint(r.cfg.Filters)
	cp, ok, err := r.checkpoint.Load(fingerprint)
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	fetch := func(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
		var out []types.Log
		for _, filter := range r.cfg.Filters {
			logs, err := r.node.FilterLogs(ctx, filter.Query(fromBlock, toBlock))
			if err != nil {
				return nil, err
			}
			out = append(out, logs...)
		}
		return out, nil
	}

	var total int
	onWindow := func(window BlockRange, logs []types.Log) error {
		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			records = append(records, BuildLogRecord(chainIDValue, log, ingestedAt))
		}
		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
		if err := r.checkpoint.Save(window.To, fingerprint); err != nil {
			return err
		}
		total += len(records)
		r.logger.Info("window complete", zap.Int("logs", len(records)), zap.Uint64("from", window.From), zap.Uint64("to", window.To))
		return nil
	}

	// Items are handed to storage per window; the accumulated slice is only needed for dedup.
	_, err = Scan(ctx, r.scanner, BlockRange{From: from, To: to}, fetch, LogKey, onWindow)
	if err != nil {
		return err
	}

	r.logger.Info("scan complete", zap.Int("logs", total), zap.Uint64("from", from), zap.Uint64("to", to))
	return nil
}

func filterFingerprint(filters []model.LogFilter) string {
	parts := make([]string, 0, len(filters))
	for _, filter := range filters {
		contract := "*"
		if filter.Contract != nil {
			contract = strings.ToLower(filter.Contract.Hex())
		}
		slots := make([]string, 0, len(filter.Topics))
		for _, slot := range filter.Topics {
			hashes := make([]string, 0, len(slot))
			for _, h := range slot {
				hashes = append(hashes, h.Hex())
			}
			slots = append(slots, strings.Join(hashes, "|"))
		}
		parts = append(parts, contract+"/"+strings.Join(slots, ","))
	}
	return strings.Join(parts, ";")
}
