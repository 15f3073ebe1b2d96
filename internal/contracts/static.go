package contracts

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"ledgerScope/internal/model"
)

// LoadStaticFile reads the configured contracts from a JSON array of
// {address, name, symbol, decimals, abiNames}.
func LoadStaticFile(path string) ([]model.ContractInfo, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts file: %w", err)
	}
	var infos []model.ContractInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("parse contracts file: %w", err)
	}
	for i := range infos {
		if !common.IsHexAddress(infos[i].Address) {
			return nil, fmt.Errorf("contracts file entry %d: invalid address %q", i, infos[i].Address)
		}
		infos[i].Address = model.NormalizeAddress(infos[i].Address)
	}
	return infos, nil
}
