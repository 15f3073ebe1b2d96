package config

import (
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL         string
	In             string
	Out            string
	Errors         string
	ContractsFile  string
	ABIDir         string
	RedisAddr      string
	FractionDigits int
	ScaleUint256   bool
	LogLevel       string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":             "./data/decoded_events.jsonl",
		"errors":          "./data/decode_errors.jsonl",
		"fraction-digits": 18,
		"scale-uint256":   true,
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	return DecodeConfig{
		RPCURL:         v.GetString("rpc"),
		In:             v.GetString("in"),
		Out:            v.GetString("out"),
		Errors:         v.GetString("errors"),
		ContractsFile:  v.GetString("contracts-file"),
		ABIDir:         v.GetString("abi-dir"),
		RedisAddr:      v.GetString("redis-addr"),
		FractionDigits: v.GetInt("fraction-digits"),
		ScaleUint256:   v.GetBool("scale-uint256"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
