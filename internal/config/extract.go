package config

import (
	"github.com/spf13/pflag"
)

// ExtractConfig holds configuration for the extract command.
type ExtractConfig struct {
	RPCURL           string
	FromBlock        uint64
	ToBlock          uint64
	Accounts         []string
	Contracts        []string
	Topic0           []string
	IncludeTxs       bool
	GroupByContract  bool
	FractionDigits   int
	OutDir           string
	Format           string
	ContractsFile    string
	ABIDir           string
	RedisAddr        string
	PGDSN            string
	Resume           bool
	KafkaBrokers     []string
	KafkaTopicPrefix string
	Scan             ScanSettings
	LogLevel         string
}

// LoadExtract merges config file, environment variables, and flags into ExtractConfig.
func LoadExtract(cfgFile string, flags *pflag.FlagSet) (ExtractConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"from":               uint64(1),
		"include-txs":        true,
		"fraction-digits":    2,
		"out-dir":            "./data/events",
		"format":             "csv",
		"kafka-topic-prefix": "ledgerscope",
	})
	if err != nil {
		return ExtractConfig{}, err
	}

	lists := listReader{v: v}
	cfg := ExtractConfig{
		RPCURL:           v.GetString("rpc"),
		FromBlock:        v.GetUint64("from"),
		ToBlock:          v.GetUint64("to"),
		Accounts:         lists.get("account"),
		Contracts:        lists.get("contract"),
		Topic0:           lists.get("topic0"),
		IncludeTxs:       v.GetBool("include-txs"),
		GroupByContract:  v.GetBool("group-by-contract"),
		FractionDigits:   v.GetInt("fraction-digits"),
		OutDir:           v.GetString("out-dir"),
		Format:           v.GetString("format"),
		ContractsFile:    v.GetString("contracts-file"),
		ABIDir:           v.GetString("abi-dir"),
		RedisAddr:        v.GetString("redis-addr"),
		PGDSN:            v.GetString("pg-dsn"),
		Resume:           v.GetBool("resume"),
		KafkaBrokers:     lists.get("kafka-brokers"),
		KafkaTopicPrefix: v.GetString("kafka-topic-prefix"),
		Scan:             loadScan(v),
		LogLevel:         v.GetString("log-level"),
	}
	if lists.err != nil {
		return ExtractConfig{}, lists.err
	}
	return cfg, nil
}
