package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ledgerScope/internal/config"
	"ledgerScope/internal/contracts"
	"ledgerScope/internal/decode"
	"ledgerScope/internal/indexer"
	"ledgerScope/internal/model"
)

func main() {
	root := &cobra.Command{
		Use:          "extractor",
		Short:        "smartBCH account event extractor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan raw logs into JSONL",
		RunE:  runScan,
	}
	scanCmd.Flags().String("rpc", "", "smartBCH RPC URL")
	scanCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	scanCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	scanCmd.Flags().StringSlice("account", nil, "tracked accounts (comma-separated)")
	scanCmd.Flags().StringSlice("contract", nil, "contract addresses (comma-separated)")
	scanCmd.Flags().StringSlice("topic0", nil, "topic0 hashes or event signatures (comma-separated)")
	scanCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	scanCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	scanCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	addScanFlags(scanCmd.Flags())
	root.AddCommand(scanCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into events",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("rpc", "", "smartBCH RPC URL, used for contract metadata and block timestamps")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/decoded_events.jsonl", "output decoded events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().Int("fraction-digits", 18, "fraction digits of rendered uint256 values")
	decodeCmd.Flags().Bool("scale-uint256", true, "scale uint256 values by contract decimals in rendered text")
	addContractFlags(decodeCmd.Flags())
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(decodeCmd)

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract, decode, replay and group the events of tracked accounts",
		RunE:  runExtract,
	}
	extractCmd.Flags().String("rpc", "", "smartBCH RPC URL")
	extractCmd.Flags().Uint64("from", 1, "start block (inclusive)")
	extractCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	extractCmd.Flags().StringSlice("account", nil, "tracked accounts (comma-separated)")
	extractCmd.Flags().StringSlice("contract", nil, "contract addresses or names (comma-separated)")
	extractCmd.Flags().StringSlice("topic0", nil, "topic0 hashes or event signatures (comma-separated)")
	extractCmd.Flags().Bool("include-txs", true, "include transactions sent or received by tracked accounts")
	extractCmd.Flags().Bool("group-by-contract", false, "group events by contract and event name")
	extractCmd.Flags().Int("fraction-digits", 2, "fraction digits of converted values")
	extractCmd.Flags().String("out-dir", "./data/events", "output directory")
	extractCmd.Flags().String("format", "csv", "output format (csv, jsonl)")
	extractCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	extractCmd.Flags().Bool("resume", false, "start after the last block stored in Postgres")
	extractCmd.Flags().StringSlice("kafka-brokers", nil, "optional Kafka brokers (comma-separated)")
	extractCmd.Flags().String("kafka-topic-prefix", "ledgerscope", "Kafka topic prefix")
	addContractFlags(extractCmd.Flags())
	addScanFlags(extractCmd.Flags())
	root.AddCommand(extractCmd)

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Collect token holders from Transfer logs and query their balances",
		RunE:  runBalances,
	}
	balancesCmd.Flags().String("rpc", "", "smartBCH RPC URL")
	balancesCmd.Flags().String("token", "", "token address or name")
	balancesCmd.Flags().Uint64("from", 1, "start block (inclusive)")
	balancesCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	balancesCmd.Flags().Uint64("at-block", 0, "block to read balances at, 0 means latest")
	balancesCmd.Flags().String("out", "./data/balances.csv", "output CSV path")
	balancesCmd.Flags().String("contracts-file", "", "static contracts JSON file")
	balancesCmd.Flags().Int("fraction-digits", 18, "fraction digits of formatted balances")
	addScanFlags(balancesCmd.Flags())
	root.AddCommand(balancesCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScanFlags(flags *pflag.FlagSet) {
	flags.Uint64("window", indexer.DefaultWindow, "initial blocks per query")
	flags.Uint64("growth-factor", 50, "window multiplier after an empty query")
	flags.Uint64("max-growth", 10_000, "maximum accumulated window multiplier")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Int("concurrency", 4, "parallel filters and block lookups")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addContractFlags(flags *pflag.FlagSet) {
	flags.String("contracts-file", "", "static contracts JSON file")
	flags.String("abi-dir", "", "directory of extra <name>.json ABIs")
	flags.String("redis-addr", "", "optional Redis address for contract metadata")
}

func scanConfig(s config.ScanSettings) indexer.ScanConfig {
	return indexer.ScanConfig{
		DefaultWindow: s.Window,
		GrowthFactor:  s.GrowthFactor,
		MaxGrowth:     s.MaxGrowth,
		MaxRetries:    s.MaxRetries,
		RetryBackoff:  s.RetryBackoff,
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func newRegistry(abiDir string, logger *zap.Logger) (*decode.Registry, error) {
	registry, err := decode.NewRegistry()
	if err != nil {
		return nil, err
	}
	if abiDir != "" {
		n, err := registry.LoadDir(abiDir)
		if err != nil {
			return nil, err
		}
		logger.Info("abis loaded", zap.String("dir", abiDir), zap.Int("count", n))
	}
	return registry, nil
}

// newManager builds the contract manager. caller may be nil, in which case unknown contracts get
// fallback metadata without a lookup. The returned cleanup closes the Redis store when one is used.
func newManager(ctx context.Context, contractsFile, redisAddr string, caller contracts.Caller, logger *zap.Logger) (*contracts.Manager, func(), error) {
	var static []model.ContractInfo
	if contractsFile != "" {
		loaded, err := contracts.LoadStaticFile(contractsFile)
		if err != nil {
			return nil, nil, err
		}
		static = loaded
	}

	opts := contracts.Options{Caller: caller, Logger: logger}
	cleanup := func() {}
	redisStore, err := contracts.NewRedisStore(ctx, contracts.RedisConfig{Addr: redisAddr})
	if err != nil {
		return nil, nil, err
	}
	if redisStore != nil {
		opts.Store = redisStore
		cleanup = func() { _ = redisStore.Close() }
	}
	return contracts.NewManager(static, opts), cleanup, nil
}

// resolveContracts accepts hex addresses or names known to the manager.
func resolveContracts(manager *contracts.Manager, inputs []string) ([]common.Address, error) {
	var hexInputs []string
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if common.IsHexAddress(input) {
			hexInputs = append(hexInputs, input)
			continue
		}
		info, ok := manager.ByName(input)
		if !ok {
			return nil, fmt.Errorf("unknown contract: %s", input)
		}
		hexInputs = append(hexInputs, info.Address)
	}
	return indexer.ParseAddresses(hexInputs)
}
