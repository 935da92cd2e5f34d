package models

// WatchedTransaction is an incoming chain transaction recorded by the wallet
// indexer under transaction:{hash}.
type WatchedTransaction struct {
	Hash           string          `json:"hash"`
	Inputs         []TxInput       `json:"inputs"`
	BalanceChanges []BalanceChange `json:"balance_changes"`
	Processed      bool            `json:"processed"`
	Error          string          `json:"error,omitempty"`
}

type TxInput struct {
	Address string `json:"address"`
}

type BalanceChange struct {
	Address string `json:"address"`
	Value   string `json:"value"` // decimal, may be negative
}
