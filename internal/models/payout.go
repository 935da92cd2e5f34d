package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout is the journal row written after a confirmed transfer.
type Payout struct {
	ID         uuid.UUID `json:"id"`
	CampaignID string    `json:"campaign_id"`
	ResponseID string    `json:"response_id"`
	AuthorID   string    `json:"author_id"`
	TargetKind string    `json:"target_kind"`
	Target     string    `json:"target"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	TxRef      string    `json:"tx_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// ThanksPost records a thank-you posted for an incoming transfer.
type ThanksPost struct {
	TxHash    string    `json:"tx_hash"`
	Sender    string    `json:"sender"`
	Value     string    `json:"value"`
	PostID    string    `json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}
