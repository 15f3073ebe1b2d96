package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "LEDGER"

// ScanSettings holds the adaptive window policy shared by every command that scans.
type ScanSettings struct {
	Window       uint64
	GrowthFactor uint64
	MaxGrowth    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Concurrency  int
}

// Config holds configuration of the scan command.
type Config struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	Accounts          []string
	Contracts         []string
	Topic0            []string
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	Scan              ScanSettings
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":                "./data/logs.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
	})
	if err != nil {
		return Config{}, err
	}

	lists := listReader{v: v}
	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Accounts:          lists.get("account"),
		Contracts:         lists.get("contract"),
		Topic0:            lists.get("topic0"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		Scan:              loadScan(v),
		LogLevel:          v.GetString("log-level"),
	}
	if lists.err != nil {
		return Config{}, lists.err
	}
	return cfg, nil
}

// newViper builds a viper instance layered as flags > env (LEDGER_*) > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("window", uint64(100_000))
	v.SetDefault("growth-factor", uint64(50))
	v.SetDefault("max-growth", uint64(10_000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("concurrency", 4)
	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadScan(v *viper.Viper) ScanSettings {
	return ScanSettings{
		Window:       v.GetUint64("window"),
		GrowthFactor: v.GetUint64("growth-factor"),
		MaxGrowth:    v.GetUint64("max-growth"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Concurrency:  v.GetInt("concurrency"),
	}
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}

// listReader reads comma-separated or list-valued keys and keeps the first error.
type listReader struct {
	v   *viper.Viper
	err error
}

func (r *listReader) get(key string) []string {
	items, err := getStringSlice(r.v, key)
	if err != nil && r.err == nil {
		r.err = err
	}
	return items
}

// getStringSlice accepts a comma-separated string or a list of strings. YAML reads unquoted hex
// such as 0x00aa as a number, so any non-string list item is rejected instead of reformatted.
func getStringSlice(v *viper.Viper, key string) ([]string, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed), nil
	case string:
		return splitAndClean(typed), nil
	case []interface{}:
		items := make([]string, 0, len(typed))
		for i, item := range typed {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected a string, got %T %v (quote hex addresses and hashes in config files)", key, i, item, item)
			}
			items = append(items, str)
		}
		return cleanStrings(items), nil
	default:
		return nil, fmt.Errorf("%s: unsupported value type %T", key, val)
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
