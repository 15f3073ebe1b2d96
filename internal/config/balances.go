package config

import (
	"github.com/spf13/pflag"
)

// BalancesConfig holds configuration for the balances command.
type BalancesConfig struct {
	RPCURL         string
	Token          string
	FromBlock      uint64
	ToBlock        uint64
	AtBlock        uint64
	Out            string
	ContractsFile  string
	FractionDigits int
	Scan           ScanSettings
	LogLevel       string
}

// LoadBalances merges config file, environment variables, and flags into BalancesConfig.
func LoadBalances(cfgFile string, flags *pflag.FlagSet) (BalancesConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"from":            uint64(1),
		"out":             "./data/balances.csv",
		"fraction-digits": 18,
	})
	if err != nil {
		return BalancesConfig{}, err
	}

	return BalancesConfig{
		RPCURL:         v.GetString("rpc"),
		Token:          v.GetString("token"),
		FromBlock:      v.GetUint64("from"),
		ToBlock:        v.GetUint64("to"),
		AtBlock:        v.GetUint64("at-block"),
		Out:            v.GetString("out"),
		ContractsFile:  v.GetString("contracts-file"),
		FractionDigits: v.GetInt("fraction-digits"),
		Scan:           loadScan(v),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
