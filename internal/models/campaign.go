package models

import "time"

// Campaign statuses
const (
	CampaignStatusOpen     = "OPEN"
	CampaignStatusRewarded = "REWARDED"
	CampaignStatusExpired  = "EXPIRED"
)

// Valid state transitions: from -> []to. Terminal statuses are sticky.
var ValidCampaignTransitions = map[string][]string{
	CampaignStatusOpen:     {CampaignStatusRewarded, CampaignStatusExpired},
	CampaignStatusRewarded: {},
	CampaignStatusExpired:  {},
}

func IsValidCampaignTransition(from, to string) bool {
	allowed, ok := ValidCampaignTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Campaign is one posted reward-eligible prompt. ID is the posted message id.
type Campaign struct {
	ID              string     `json:"campaign_id"`
	Context         string     `json:"context"`
	Prompt          string     `json:"prompt"`
	ReferenceAnswer string     `json:"reference_answer"`
	RewardAmount    int64      `json:"reward_amount"`
	Currency        string     `json:"currency"`
	CreatedAt       time.Time  `json:"created_at"`
	Status          string     `json:"status"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	PendingAuthorID string     `json:"pending_author_id,omitempty"` // qualified author still owing a target
	RewardedAt      *time.Time `json:"rewarded_at,omitempty"`
	WinnerAuthorID  string     `json:"winner_author_id,omitempty"`
}

// Expired reports whether the campaign is past ttl at now, regardless of status.
func (c *Campaign) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) > ttl
}

func (c *Campaign) IsOpen() bool {
	return c.Status == CampaignStatusOpen
}

// Question is a generated campaign prompt before it is posted.
type Question struct {
	Context         string `json:"question_context"`
	Prompt          string `json:"question_prompt"`
	ReferenceAnswer string `json:"reference_answer"`
	Amount          int64  `json:"amount"`
}
