package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledgerScope/internal/chain"
	"ledgerScope/internal/config"
	"ledgerScope/internal/contracts"
	"ledgerScope/internal/decode"
	"ledgerScope/internal/indexer"
	"ledgerScope/internal/model"
	"ledgerScope/internal/storage"
)

var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

type holderBalance struct {
	address common.Address
	balance *big.Int
}

func runBalances(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBalances(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	manager, cleanup, err := newManager(ctx, cfg.ContractsFile, "", chainClient, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	tokens, err := resolveContracts(manager, []string{cfg.Token})
	if err != nil {
		return err
	}
	token := tokens[0]
	info, err := manager.Get(ctx, token.Hex())
	if err != nil {
		return err
	}

	to := cfg.ToBlock
	if to == 0 {
		to, err = chainClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}

	scanner := indexer.NewScanner(scanConfig(cfg.Scan), logger)
	filter := model.LogFilter{Contract: &token, Topics: [][]common.Hash{{transferTopic}}}
	logs, err := scanner.ScanLogs(ctx, chainClient, filter, indexer.BlockRange{From: cfg.FromBlock, To: to})
	if err != nil {
		return err
	}
	holders := transferParties(logs)
	logger.Info("holders collected", zap.String("token", info.Address), zap.Int("transfers", len(logs)), zap.Int("holders", len(holders)))

	var block *big.Int
	if cfg.AtBlock != 0 {
		block = new(big.Int).SetUint64(cfg.AtBlock)
	}
	results := make([]holderBalance, 0, len(holders))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Scan.Concurrency > 0 {
		g.SetLimit(cfg.Scan.Concurrency)
	}
	for _, holder := range holders {
		holder := holder
		g.Go(func() error {
			balance, err := contracts.BalanceOf(gctx, chainClient, token, holder, block)
			if err != nil {
				return fmt.Errorf("balance of %s: %w", holder.Hex(), err)
			}
			mu.Lock()
			results = append(results, holderBalance{address: holder, balance: balance})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sortBalances(results)
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			strings.ToLower(r.address.Hex()),
			r.balance.String(),
			decode.FormatFixed(r.balance, int(info.Decimals), cfg.FractionDigits),
		})
	}
	if err := storage.WriteTable(cfg.Out, []string{"address", "balance", "balance_"}, rows); err != nil {
		return err
	}
	logger.Info("balances written", zap.String("out", cfg.Out), zap.Int("rows", len(rows)))
	return nil
}

// transferParties returns every non-zero sender and receiver of the Transfer logs, in first-seen order.
func transferParties(logs []types.Log) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	for _, log := range logs {
		if len(log.Topics) < 3 {
			continue
		}
		for _, topic := range log.Topics[1:3] {
			address := indexer.TopicAddress(topic)
			if address == (common.Address{}) {
				continue
			}
			if _, ok := seen[address]; ok {
				continue
			}
			seen[address] = struct{}{}
			out = append(out, address)
		}
	}
	return out
}

// sortBalances orders by balance descending, then address.
func sortBalances(balances []holderBalance) {
	sort.Slice(balances, func(i, j int) bool {
		if c := balances[i].balance.Cmp(balances[j].balance); c != 0 {
			return c > 0
		}
		return balances[i].address.Hex() < balances[j].address.Hex()
	})
}
