package extract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledgerScope/internal/aggregate"
	"ledgerScope/internal/decode"
	"ledgerScope/internal/indexer"
	"ledgerScope/internal/model"
	"ledgerScope/internal/replay"
	"ledgerScope/internal/storage"
)

// ErrNoFilters is returned when a request selects neither accounts, contracts nor topics.
var ErrNoFilters = errors.New("no accounts, contracts or topics to extract")

// Node is the chain access the pipeline needs.
type Node interface {
	indexer.LogSource
	indexer.TxSource
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Resolver returns metadata for a contract address.
type Resolver interface {
	Get(ctx context.Context, address string) (model.ContractInfo, error)
}

// BalanceSink stores final replayed balances.
type BalanceSink interface {
	UpsertBalances(ctx context.Context, contract string, block uint64, balances map[string]*big.Int) error
}

// Request selects what to extract.
type Request struct {
	FromBlock uint64
	// ToBlock of 0 means the latest block.
	ToBlock   uint64
	Accounts  []common.Address
	Contracts []common.Address
	Topic0    []common.Hash
	// IncludeTransactions adds the receipts and call inputs of transactions touching the accounts.
	IncludeTransactions bool
	GroupByContract     bool
	FractionDigits      int
	Concurrency         int
}

// Result is the outcome of a run.
type Result struct {
	Range  indexer.BlockRange
	Events []model.DecodedEvent
	Groups aggregate.Groups
	// Balances holds the replayed balances per contract address.
	Balances map[string]map[string]*big.Int
	// Incomplete counts filters or sources whose scan stopped early on a non-fatal error.
	Incomplete int
}

// Pipeline wires scanning, decoding, replay, aggregation and output.
type Pipeline struct {
	node      Node
	contracts Resolver
	decoder   *decode.Decoder
	scanner   *indexer.Scanner
	sink      storage.EventSink
	balances  BalanceSink
	logger    *zap.Logger
}

// Options carries the optional collaborators of a Pipeline. Nil sinks are skipped.
type Options struct {
	Scan     indexer.ScanConfig
	Sink     storage.EventSink
	Balances BalanceSink
	Logger   *zap.Logger
}

// NewPipeline builds a Pipeline over node, resolving contracts through contracts.
func NewPipeline(node Node, contracts Resolver, decoder *decode.Decoder, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		node:      node,
		contracts: contracts,
		decoder:   decoder,
		scanner:   indexer.NewScanner(opts.Scan, logger),
		sink:      opts.Sink,
		balances:  opts.Balances,
		logger:    logger,
	}
}

// Run executes one extraction. Only fatal scan errors, context cancellation and output failures
// abort it; other failures are logged and leave the result partial.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	to := req.ToBlock
	if to == 0 {
		latest, err := p.node.LatestBlockNumber(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}
	r := indexer.BlockRange{From: req.FromBlock, To: to}
	if err := r.Validate(); err != nil {
		return Result{}, err
	}

	filters := append(indexer.AccountFilters(req.Accounts), indexer.ContractFilters(req.Contracts, req.Topic0)...)
	if len(filters) == 0 {
		return Result{}, ErrNoFilters
	}

	chainID, err := p.node.GetChainID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return Result{}, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	result := Result{Range: r}
	p.logger.Info("extract start", zap.Uint64("from", r.From), zap.Uint64("to", r.To), zap.Int("filters", len(filters)))

	scanned, err := p.scanner.ScanFilters(ctx, p.node, filters, r, req.Concurrency)
	if err != nil {
		return result, err
	}
	logs := indexer.NewLogSet()
	for _, res := range scanned {
		if res.Err != nil {
			result.Incomplete++
		}
		logs.Add(res.Logs...)
	}

	var txs []model.TxRecord
	if req.IncludeTransactions {
		var incomplete int
		txs, incomplete, err = p.collectTransactions(ctx, req.Accounts, r, logs)
		if err != nil {
			return result, err
		}
		result.Incomplete += incomplete
	}

	events, err := p.decodeAll(ctx, chainID.Uint64(), logs.Logs(), txs)
	if err != nil {
		return result, err
	}
	if err := p.resolveTimestamps(ctx, events, req.Concurrency); err != nil {
		return result, err
	}

	events, balances, err := p.replayAll(ctx, req.Accounts, events)
	if err != nil {
		return result, err
	}
	result.Balances = balances

	result.Events = aggregate.ConvertValues(events, req.FractionDigits)
	key := aggregate.KeyByKind
	if req.GroupByContract {
		key = aggregate.KeyByKindAndContract
	}
	result.Groups = aggregate.GroupBy(result.Events, key)

	if err := p.write(ctx, result); err != nil {
		return result, err
	}
	p.logger.Info("extract complete",
		zap.Int("logs", logs.Len()),
		zap.Int("events", len(result.Events)),
		zap.Int("groups", len(result.Groups)),
		zap.Int("incomplete", result.Incomplete),
	)
	return result, nil
}

// collectTransactions finds the transactions of each account and adds their receipt logs to logs.
func (p *Pipeline) collectTransactions(ctx context.Context, accounts []common.Address, r indexer.BlockRange, logs *indexer.LogSet) ([]model.TxRecord, int, error) {
	var all []model.TxRecord
	seen := make(map[string]struct{})
	incomplete := 0
	for _, account := range accounts {
		txs, err := p.scanner.ScanTxs(ctx, p.node, account, r)
		if err != nil {
			if indexer.IsFatal(err) || ctx.Err() != nil {
				return nil, 0, err
			}
			incomplete++
			p.logger.Warn("transaction scan incomplete", zap.String("account", account.Hex()), zap.Int("txs", len(txs)), zap.Error(err))
		}
		receiptLogs, err := p.scanner.ReceiptLogs(ctx, p.node, txs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			incomplete++
			p.logger.Warn("receipt fetch incomplete", zap.String("account", account.Hex()), zap.Error(err))
		}
		added := logs.Add(receiptLogs...)
		p.logger.Info("transactions scanned", zap.String("account", account.Hex()), zap.Int("txs", len(txs)), zap.Int("new_logs", added))
		for _, tx := range txs {
			if _, ok := seen[tx.Key()]; ok {
				continue
			}
			seen[tx.Key()] = struct{}{}
			all = append(all, tx)
		}
	}
	return all, incomplete, nil
}

func (p *Pipeline) decodeAll(ctx context.Context, chainID uint64, logs []types.Log, txs []model.TxRecord) ([]model.DecodedEvent, error) {
	events := make([]model.DecodedEvent, 0, len(logs)+len(txs))
	unknown := 0
	for _, log := range logs {
		record := indexer.BuildLogRecord(chainID, log, time.Time{})
		contract, err := p.contracts.Get(ctx, record.Address)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", record.Address, err)
		}
		event := p.decoder.DecodeLog(contract, record)
		if event.ABIKind == model.ABIKindUnknown {
			unknown++
		}
		events = append(events, event)
	}
	for _, tx := range txs {
		if tx.To == "" {
			continue
		}
		contract, err := p.contracts.Get(ctx, tx.To)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", tx.To, err)
		}
		events = append(events, p.decoder.DecodeTransaction(contract, tx))
	}
	if unknown > 0 {
		p.logger.Warn("logs without matching abi", zap.Int("count", unknown))
	}
	return events, nil
}

// resolveTimestamps sets block timestamps. Blocks that cannot be read keep an unresolved timestamp.
func (p *Pipeline) resolveTimestamps(ctx context.Context, events []model.DecodedEvent, concurrency int) error {
	blocks := make(map[uint64]uint64)
	for _, event := range events {
		blocks[event.BlockNumber] = 0
	}
	numbers := make([]uint64, 0, len(blocks))
	for number := range blocks {
		numbers = append(numbers, number)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, number := range numbers {
		number := number
		g.Go(func() error {
			ts, err := p.node.BlockTimestamp(gctx, number)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("block timestamp unavailable", zap.Uint64("block", number), zap.Error(err))
				return nil
			}
			mu.Lock()
			blocks[number] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range events {
		if ts := blocks[events[i].BlockNumber]; ts != 0 {
			events[i].SetTimestamp(ts)
		}
	}
	return nil
}

// replayAll replays every contract that emitted ChangeMultiplier. Contracts are independent and
// replayed concurrently; a contract that cannot be replayed keeps its events unchanged.
func (p *Pipeline) replayAll(ctx context.Context, accounts []common.Address, events []model.DecodedEvent) ([]model.DecodedEvent, map[string]map[string]*big.Int, error) {
	tracked := make([]string, 0, len(accounts))
	for _, account := range accounts {
		tracked = append(tracked, account.Hex())
	}

	byContract := make(map[string][]model.DecodedEvent)
	rebasing := make(map[string]bool)
	var rest []model.DecodedEvent
	for _, event := range events {
		if event.Source == model.SourceTransaction {
			rest = append(rest, event)
			continue
		}
		address := event.ContractAddress
		byContract[address] = append(byContract[address], event)
		if event.EventName == replay.EventChangeMultiplier && event.ABIKind != model.ABIKindUnknown {
			rebasing[address] = true
		}
	}

	contracts := make([]string, 0, len(byContract))
	for address := range byContract {
		contracts = append(contracts, address)
	}
	sort.Strings(contracts)

	replayed := make([][]model.DecodedEvent, len(contracts))
	balances := make([]map[string]*big.Int, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	for i, address := range contracts {
		i, address := i, address
		replayed[i] = byContract[address]
		if !rebasing[address] || len(tracked) == 0 {
			continue
		}
		g.Go(func() error {
			info, err := p.contracts.Get(gctx, address)
			if err != nil {
				return fmt.Errorf("contract %s: %w", address, err)
			}
			res, err := replay.Replay(info, tracked, byContract[address])
			if err != nil {
				p.logger.Warn("balance replay skipped", zap.String("contract", address), zap.Error(err))
				return nil
			}
			replayed[i] = res.Events
			balances[i] = res.Balances
			p.logger.Info("balance replay complete", zap.String("contract", address), zap.Int("synthetic", len(res.Synthetic)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := rest
	final := make(map[string]map[string]*big.Int)
	for i, address := range contracts {
		out = append(out, replayed[i]...)
		if balances[i] != nil {
			final[address] = balances[i]
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return chainOrderLess(out[a], out[b])
	})
	return out, final, nil
}

func (p *Pipeline) write(ctx context.Context, result Result) error {
	if p.sink != nil {
		for _, group := range result.Groups {
			if err := p.sink.WriteGroup(ctx, group.Key, group.Events); err != nil {
				return fmt.Errorf("write group %s: %w", group.Key, err)
			}
			p.logger.Info("group written", zap.String("group", group.Key), zap.Int("events", len(group.Events)))
		}
	}
	if p.balances != nil {
		for contract, balances := range result.Balances {
			if err := p.balances.UpsertBalances(ctx, contract, result.Range.To, balances); err != nil {
				return fmt.Errorf("store balances of %s: %w", contract, err)
			}
		}
	}
	return nil
}

// chainOrderLess orders by timestamp, block and log index. A synthetic record carries the log index
// of the ChangeMultiplier that produced it and sorts right after that log.
func chainOrderLess(a, b model.DecodedEvent) bool {
	if a.BlockTimestamp != b.BlockTimestamp {
		return a.BlockTimestamp < b.BlockTimestamp
	}
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	if a.LogIndex != b.LogIndex {
		return a.LogIndex < b.LogIndex
	}
	return !a.IsSynthetic() && b.IsSynthetic()
}
