// Package ledger owns campaign, claim, pending-target and settlement records.
// Callers never touch those store keys directly.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/seal-agent/backend/internal/models"
)

var (
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrNoOpenCampaign     = errors.New("no open campaign")
	ErrCampaignExists     = errors.New("campaign already exists")
	ErrCampaignOpen       = errors.New("another campaign is still open")
	ErrInvalidTransition  = errors.New("invalid campaign status transition")
	ErrClaimExists        = errors.New("claim already recorded")
	ErrClaimNotFound      = errors.New("claim not found")
	ErrPendingNotFound    = errors.New("pending target not found")
	ErrSettlementExists   = errors.New("settlement already started for response")
	ErrSettlementNotFound = errors.New("settlement not found")
)

// Ledger is the settlement record API. Every write is a single-key write;
// there are no multi-key transactions.
type Ledger interface {
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	GetOpenCampaign(ctx context.Context) (*models.Campaign, error)
	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
	MarkRewarded(ctx context.Context, id, winnerAuthorID string) error
	MarkExpired(ctx context.Context, id string) error
	SetPendingAuthor(ctx context.Context, id, authorID string) error
	UpdateWatermark(ctx context.Context, id string, ts time.Time) error

	RecordClaim(ctx context.Context, claim models.Claim) error
	HasClaimed(ctx context.Context, authorID string) (bool, error)
	GetClaim(ctx context.Context, authorID, campaignID string) (*models.Claim, error)
	CampaignClaim(ctx context.Context, campaignID string) (*models.Claim, error)
	ListClaims(ctx context.Context) ([]models.Claim, error)

	SetPendingTarget(ctx context.Context, authorID, campaignID string, amount int64, currency string) error
	GetPendingTarget(ctx context.Context, authorID string) (*models.PendingTarget, error)
	ListPendingTargets(ctx context.Context) ([]models.PendingTarget, error)
	ClearPendingTarget(ctx context.Context, authorID string) error
	ClearPendingForCampaign(ctx context.Context, campaignID string) (int, error)

	BeginSettlement(ctx context.Context, s models.Settlement) error
	CompleteSettlement(ctx context.Context, responseID, txRef string) error
	AbortSettlement(ctx context.Context, responseID string) error
}
