package model

import "strings"

// TxRecord is a transaction touching a tracked account, as returned by sbch_queryTxByAddr.
type TxRecord struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	TxIndex     uint64 `json:"tx_index"`
	From        string `json:"from"`
	To          string `json:"to"`
	Input       string `json:"input"`
	Value       string `json:"value"`
}

// Key identifies a transaction.
func (tx TxRecord) Key() string {
	return strings.ToLower(tx.TxHash)
}
