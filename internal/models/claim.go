package models

import "time"

// Claim is durable proof that a reward was granted. Keyed by author in the
// address flow and by campaign in the invoice flow; never overwritten.
type Claim struct {
	AuthorID   string    `json:"author_id"`
	CampaignID string    `json:"campaign_id"`
	ResponseID string    `json:"response_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency_type"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// PendingTarget records a qualified author whose response lacked a payment target.
type PendingTarget struct {
	AuthorID   string    `json:"author_id"`
	CampaignID string    `json:"campaign_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Awarded    bool      `json:"awarded"`
	CreatedAt  time.Time `json:"created_at"`
}

// Settlement statuses
const (
	SettlementStatusInFlight  = "in_flight"
	SettlementStatusCompleted = "completed"
)

// Settlement is the intent written before a transfer is attempted for a response.
type Settlement struct {
	ResponseID string    `json:"response_id"`
	CampaignID string    `json:"campaign_id"`
	AuthorID   string    `json:"author_id"`
	Target     string    `json:"target"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	TxRef      string    `json:"tx_ref,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
