package model

// ContractInfo captures the metadata needed to decode and render a contract's logs.
type ContractInfo struct {
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Decimals uint8    `json:"decimals"`
	ABINames []string `json:"abiNames"`
	// Fallback is set when the contract was not configured and its ABI list is a guess.
	Fallback bool `json:"fallback,omitempty"`
}
