package model

// DecodeError records a raw log line that could not be turned into a known event.
type DecodeError struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topic0      string   `json:"topic0"`
	ABINames    []string `json:"abi_names,omitempty"`
	Error       string   `json:"error"`
}

// NewDecodeError builds the error line for record. abiNames lists the ABIs that were tried.
func NewDecodeError(record LogRecord, abiNames []string, err error) DecodeError {
	return DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     NormalizeAddress(record.Address),
		Topic0:      record.Topic0(),
		ABINames:    abiNames,
		Error:       err.Error(),
	}
}
