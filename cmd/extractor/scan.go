package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ledgerScope/internal/chain"
	"ledgerScope/internal/config"
	"ledgerScope/internal/indexer"
	"ledgerScope/internal/storage"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	accounts, err := indexer.ParseAddresses(cfg.Accounts)
	if err != nil {
		return err
	}
	contractAddrs, err := indexer.ParseAddresses(cfg.Contracts)
	if err != nil {
		return err
	}
	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}
	filters := append(indexer.AccountFilters(accounts), indexer.ContractFilters(contractAddrs, topic0)...)
	if len(filters) == 0 {
		return fmt.Errorf("at least one account, contract or topic0 is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Filters:           filters,
		Scan:              scanConfig(cfg.Scan),
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}, chainClient, storage.NewJsonlStorage(cfg.Out), logger)

	logger.Info("scan start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("accounts", len(accounts)),
		zap.Int("contracts", len(contractAddrs)),
		zap.Int("topic0", len(topic0)),
		zap.Int("filters", len(filters)),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}
