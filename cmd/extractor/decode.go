package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ledgerScope/internal/chain"
	"ledgerScope/internal/config"
	"ledgerScope/internal/contracts"
	"ledgerScope/internal/decode"
	"ledgerScope/internal/model"
	"ledgerScope/internal/storage"
)

var errNoMatchingABI = errors.New("no abi matches the log")

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chainClient *chain.Client
	var caller contracts.Caller
	if cfg.RPCURL != "" {
		chainClient, err = chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		caller = chainClient
	}

	registry, err := newRegistry(cfg.ABIDir, logger)
	if err != nil {
		return err
	}
	manager, cleanup, err := newManager(ctx, cfg.ContractsFile, cfg.RedisAddr, caller, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	decoder := decode.NewDecoder(registry, decode.Format{
		FractionDigits: cfg.FractionDigits,
		ScaleUint256:   cfg.ScaleUint256,
	})

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Strings("abis", registry.Names()),
	)

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	timestamps := make(map[uint64]uint64)
	var total, decoded, unknown, failed int
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			writeDecodeError(errWriter, model.DecodeError{Error: err.Error()})
			continue
		}

		contract, err := manager.Get(ctx, record.Address)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			writeDecodeError(errWriter, model.NewDecodeError(record, nil, err))
			continue
		}

		event := decoder.DecodeLog(contract, record)
		if event.ABIKind == model.ABIKindUnknown {
			unknown++
			writeDecodeError(errWriter, model.NewDecodeError(record, contract.ABINames, errNoMatchingABI))
		} else {
			decoded++
		}

		if chainClient != nil {
			ts, ok := timestamps[record.BlockNumber]
			if !ok {
				ts, err = chainClient.BlockTimestamp(ctx, record.BlockNumber)
				if err != nil {
					logger.Warn("block timestamp unavailable", zap.Uint64("block", record.BlockNumber), zap.Error(err))
				}
				timestamps[record.BlockNumber] = ts
			}
			if ts != 0 {
				event.SetTimestamp(ts)
			}
		}

		if err := outWriter.Write(event); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("unknown", unknown),
		zap.Int("failed", failed),
	)

	return nil
}

func writeDecodeError(writer *storage.JSONLWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
