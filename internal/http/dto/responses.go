package dto

import "time"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoopResponse struct {
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Changed bool   `json:"changed"`
}

// BalanceResponse holds whole-unit balances; TON is in nanoton.
type BalanceResponse struct {
	CKB  *int64 `json:"ckb,omitempty"`
	Seal *int64 `json:"seal,omitempty"`
	TON  *int64 `json:"ton_nano,omitempty"`

	TONAddress string   `json:"ton_address,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}
