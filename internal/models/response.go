package models

import "time"

// CandidateResponse is one user reply or mention considered for reward. Never
// persisted on its own.
type CandidateResponse struct {
	ResponseID           string    `json:"response_id"`
	AuthorID             string    `json:"author_id"`
	Text                 string    `json:"text"`
	AttachedMediaRef     *string   `json:"attached_media_ref,omitempty"`
	ReferencedCampaignID string    `json:"referenced_campaign_id"`
	CreatedAt            time.Time `json:"created_at"`
}
