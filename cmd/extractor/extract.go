package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ledgerScope/internal/chain"
	"ledgerScope/internal/config"
	"ledgerScope/internal/decode"
	"ledgerScope/internal/extract"
	"ledgerScope/internal/indexer"
	"ledgerScope/internal/storage"
	"ledgerScope/internal/storage/kafka"
	"ledgerScope/internal/storage/postgres"
)

const extractStateName = "extract"

func runExtract(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadExtract(cfgFile, cmd.Flags())
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	registry, err := newRegistry(cfg.ABIDir, logger)
	if err != nil {
		return err
	}
	manager, cleanup, err := newManager(ctx, cfg.ContractsFile, cfg.RedisAddr, chainClient, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	accounts, err := indexer.ParseAddresses(cfg.Accounts)
	if err != nil {
		return err
	}
	contractAddrs, err := resolveContracts(manager, cfg.Contracts)
	if err != nil {
		return err
	}
	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	var sinks storage.MultiSink
	switch strings.ToLower(cfg.Format) {
	case "csv":
		sinks = append(sinks, storage.NewCSVSink(cfg.OutDir))
	case "jsonl":
		sinks = append(sinks, storage.NewJSONLEventSink(cfg.OutDir))
	default:
		return fmt.Errorf("unsupported format: %s", cfg.Format)
	}

	opts := extract.Options{Scan: scanConfig(cfg.Scan), Logger: logger}
	var pg *postgres.Store
	if cfg.PGDSN != "" {
		pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		opts.Balances = pg
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.NewPublisher(kafka.PublisherConfig{Brokers: cfg.KafkaBrokers, TopicPrefix: cfg.KafkaTopicPrefix})
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	opts.Sink = sinks

	from := cfg.FromBlock
	if cfg.Resume {
		if pg == nil {
			return fmt.Errorf("resume requires a postgres dsn")
		}
		last, ok, err := pg.LoadState(ctx, extractStateName)
		if err != nil {
			return fmt.Errorf("load extract state: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			logger.Info("resume from stored state", zap.Uint64("last_processed", last), zap.Uint64("from", from))
			if len(accounts) > 0 {
				logger.Warn("replayed balances restart from zero at the resumed block")
			}
		}
	}

	decoder := decode.NewDecoder(registry, decode.DefaultFormat())
	pipeline := extract.NewPipeline(chainClient, manager, decoder, opts)

	logger.Info("extract start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("accounts", len(accounts)),
		zap.Int("contracts", len(contractAddrs)),
		zap.Int("topic0", len(topic0)),
		zap.String("format", cfg.Format),
		zap.String("out_dir", cfg.OutDir),
		zap.Bool("postgres", pg != nil),
		zap.Int("kafka_brokers", len(cfg.KafkaBrokers)),
	)

	result, err := pipeline.Run(ctx, extract.Request{
		FromBlock:           from,
		ToBlock:             cfg.ToBlock,
		Accounts:            accounts,
		Contracts:           contractAddrs,
		Topic0:              topic0,
		IncludeTransactions: cfg.IncludeTxs,
		GroupByContract:     cfg.GroupByContract,
		FractionDigits:      cfg.FractionDigits,
		Concurrency:         cfg.Scan.Concurrency,
	})
	if err != nil {
		return err
	}

	if pg != nil && result.Incomplete == 0 {
		if err := pg.SaveState(ctx, extractStateName, result.Range.To); err != nil {
			return fmt.Errorf("save extract state: %w", err)
		}
	}
	if result.Incomplete > 0 {
		logger.Warn("extraction incomplete, some filters failed", zap.Int("failed_filters", result.Incomplete))
	}
	return nil
}
