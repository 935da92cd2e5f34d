// Package social is the platform client the bot posts and reads mentions through.
package social

import (
	"context"
	"time"

	"github.com/seal-agent/backend/internal/models"
)

type MentionQuery struct {
	UserID          string
	Since           time.Time
	PageSize        int
	PaginationToken string
}

// MentionPage is one page of mentions, oldest first. NextToken is empty on
// the last page.
type MentionPage struct {
	Mentions  []models.CandidateResponse
	NextToken string
}

type Client interface {
	Me(ctx context.Context) (string, error)
	Post(ctx context.Context, text string) (string, error)
	Reply(ctx context.Context, messageID, text string) (string, error)
	Mentions(ctx context.Context, q MentionQuery) (MentionPage, error)
}
