package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StreamSettlement carries every campaign and payout event.
const StreamSettlement = "events:settlement"

// Event types
const (
	EventCampaignOpened   = "campaign_opened"
	EventCampaignRewarded = "campaign_rewarded"
	EventCampaignExpired  = "campaign_expired"
	EventRewardPaid       = "reward_paid"
	EventAwaitingTarget   = "awaiting_target"
	EventTransferFailed   = "transfer_failed"
	EventThanksPosted     = "thanks_posted"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id,omitempty"`
	At         time.Time      `json:"at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ, campaignID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		CampaignID: campaignID,
		At:         time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
