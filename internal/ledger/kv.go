package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/store"
)

// Key namespaces
const (
	campaignPrefix   = "campaign:"
	claimPrefix      = "claim:"
	pendingPrefix    = "pending:"
	settlementPrefix = "settlement:"
)

// KV implements Ledger over a store.Store. Listing operations scan a key
// prefix, which is O(n) in live records.
type KV struct {
	st  store.Store
	now func() time.Time
}

func NewKV(st store.Store) *KV {
	return &KV{st: st, now: time.Now}
}

// WithClock overrides the time source.
func (l *KV) WithClock(now func() time.Time) *KV {
	l.now = now
	return l
}

var _ Ledger = (*KV)(nil)

// --- campaigns ---

func (l *KV) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("create campaign: empty id")
	}
	open, err := l.GetOpenCampaign(ctx)
	switch {
	case err == nil:
		return fmt.Errorf("create campaign %s: %w (open: %s)", c.ID, ErrCampaignOpen, open.ID)
	case !errors.Is(err, ErrNoOpenCampaign):
		return err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = l.now().UTC()
	}
	c.Status = models.CampaignStatusOpen

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ok, err := l.st.SetNX(ctx, campaignPrefix+c.ID, data)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("create campaign %s: %w", c.ID, ErrCampaignExists)
	}
	return nil
}

func (l *KV) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	if err := l.getJSON(ctx, campaignPrefix+id, &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetOpenCampaign returns the newest OPEN campaign. An expired-but-still-OPEN
// record is returned as is; expiry is the lifecycle's call.
func (l *KV) GetOpenCampaign(ctx context.Context) (*models.Campaign, error) {
	all, err := l.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IsOpen() {
			c := all[i]
			return &c, nil
		}
	}
	return nil, ErrNoOpenCampaign
}

// ListCampaigns returns every campaign, oldest first.
func (l *KV) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	keys, err := l.st.Keys(ctx, campaignPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]models.Campaign, 0, len(keys))
	for _, k := range keys {
		var c models.Campaign
		if err := l.getJSON(ctx, k, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *KV) MarkRewarded(ctx context.Context, id, winnerAuthorID string) error {
	now := l.now().UTC()
	return l.transition(ctx, id, models.CampaignStatusRewarded, func(c *models.Campaign) {
		c.RewardedAt = &now
		c.WinnerAuthorID = winnerAuthorID
		c.PendingAuthorID = ""
	})
}

func (l *KV) MarkExpired(ctx context.Context, id string) error {
	return l.transition(ctx, id, models.CampaignStatusExpired, nil)
}

// SetPendingAuthor marks the campaign as having a qualified author who still
// owes a payment target. Status stays OPEN.
func (l *KV) SetPendingAuthor(ctx context.Context, id, authorID string) error {
	return l.update(ctx, id, func(c *models.Campaign) error {
		if !c.IsOpen() {
			return fmt.Errorf("set pending author on %s campaign %s: %w", c.Status, id, ErrInvalidTransition)
		}
		c.PendingAuthorID = authorID
		return nil
	})
}

func (l *KV) UpdateWatermark(ctx context.Context, id string, ts time.Time) error {
	return l.update(ctx, id, func(c *models.Campaign) error {
		t := ts.UTC()
		if c.LastProcessedAt != nil && t.Before(*c.LastProcessedAt) {
			return nil // forward only
		}
		c.LastProcessedAt = &t
		return nil
	})
}

func (l *KV) transition(ctx context.Context, id, to string, mutate func(*models.Campaign)) error {
	return l.update(ctx, id, func(c *models.Campaign) error {
		if !models.IsValidCampaignTransition(c.Status, to) {
			return fmt.Errorf("campaign %s %s -> %s: %w", id, c.Status, to, ErrInvalidTransition)
		}
		c.Status = to
		if mutate != nil {
			mutate(c)
		}
		return nil
	})
}

func (l *KV) update(ctx context.Context, id string, fn func(*models.Campaign) error) error {
	c, err := l.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return l.setJSON(ctx, campaignPrefix+id, c)
}

// --- claims ---

// RecordClaim is monotonic: an existing claim for the same author and
// campaign is left untouched and ErrClaimExists returned.
func (l *KV) RecordClaim(ctx context.Context, claim models.Claim) error {
	if claim.AuthorID == "" {
		return fmt.Errorf("record claim: empty author")
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = l.now().UTC()
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	ok, err := l.st.SetNX(ctx, claimKey(claim.AuthorID, claim.CampaignID), data)
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimExists
	}
	return nil
}

// HasClaimed reports whether the author was ever rewarded, in any campaign.
func (l *KV) HasClaimed(ctx context.Context, authorID string) (bool, error) {
	keys, err := l.st.Keys(ctx, claimPrefix+escapeGlob(keySegment(authorID))+":*")
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// CampaignClaim returns the claim recorded for the campaign, whoever won it.
func (l *KV) CampaignClaim(ctx context.Context, campaignID string) (*models.Claim, error) {
	keys, err := l.st.Keys(ctx, claimPrefix+"*:"+escapeGlob(keySegment(campaignID)))
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	for _, k := range keys {
		var c models.Claim
		if err := l.getJSON(ctx, k, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return &c, nil
	}
	return nil, ErrClaimNotFound
}

func (l *KV) GetClaim(ctx context.Context, authorID, campaignID string) (*models.Claim, error) {
	var c models.Claim
	if err := l.getJSON(ctx, claimKey(authorID, campaignID), &c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (l *KV) ListClaims(ctx context.Context) ([]models.Claim, error) {
	keys, err := l.st.Keys(ctx, claimPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]models.Claim, 0, len(keys))
	for _, k := range keys {
		var c models.Claim
		if err := l.getJSON(ctx, k, &c); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClaimedAt.Before(out[j].ClaimedAt) })
	return out, nil
}

// claimKey escapes both segments so neither can contain the ':' separator.
func claimKey(authorID, campaignID string) string {
	return claimPrefix + keySegment(authorID) + ":" + keySegment(campaignID)
}

func keySegment(s string) string {
	return url.QueryEscape(s)
}

// --- pending targets ---

func (l *KV) SetPendingTarget(ctx context.Context, authorID, campaignID string, amount int64, currency string) error {
	p := models.PendingTarget{
		AuthorID:   authorID,
		CampaignID: campaignID,
		Amount:     amount,
		Currency:   currency,
		Awarded:    false,
		CreatedAt:  l.now().UTC(),
	}
	return l.setJSON(ctx, pendingPrefix+authorID, p)
}

func (l *KV) GetPendingTarget(ctx context.Context, authorID string) (*models.PendingTarget, error) {
	var p models.PendingTarget
	if err := l.getJSON(ctx, pendingPrefix+authorID, &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPendingNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (l *KV) ListPendingTargets(ctx context.Context) ([]models.PendingTarget, error) {
	keys, err := l.st.Keys(ctx, pendingPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]models.PendingTarget, 0, len(keys))
	for _, k := range keys {
		var p models.PendingTarget
		if err := l.getJSON(ctx, k, &p); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *KV) ClearPendingTarget(ctx context.Context, authorID string) error {
	return l.st.Delete(ctx, pendingPrefix+authorID)
}

// ClearPendingForCampaign drops every pending record that belongs to the
// campaign and returns how many were removed.
func (l *KV) ClearPendingForCampaign(ctx context.Context, campaignID string) (int, error) {
	all, err := l.ListPendingTargets(ctx)
	if err != nil {
		return 0, err
	}
	var keys []string
	for _, p := range all {
		if p.CampaignID == campaignID {
			keys = append(keys, pendingPrefix+p.AuthorID)
		}
	}
	if err := l.st.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// --- settlements ---

// BeginSettlement writes the transfer intent for a response. A response that
// already has an intent, in flight or completed, is never paid again.
func (l *KV) BeginSettlement(ctx context.Context, s models.Settlement) error {
	now := l.now().UTC()
	s.Status = models.SettlementStatusInFlight
	s.StartedAt = now
	s.UpdatedAt = now
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := l.st.SetNX(ctx, settlementPrefix+s.ResponseID, data)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("response %s: %w", s.ResponseID, ErrSettlementExists)
	}
	return nil
}

func (l *KV) CompleteSettlement(ctx context.Context, responseID, txRef string) error {
	var s models.Settlement
	if err := l.getJSON(ctx, settlementPrefix+responseID, &s); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSettlementNotFound
		}
		return err
	}
	s.Status = models.SettlementStatusCompleted
	s.TxRef = txRef
	s.UpdatedAt = l.now().UTC()
	return l.setJSON(ctx, settlementPrefix+responseID, s)
}

// AbortSettlement removes an in-flight intent after a failed transfer so a
// later pass may try again. Completed settlements are kept.
func (l *KV) AbortSettlement(ctx context.Context, responseID string) error {
	var s models.Settlement
	if err := l.getJSON(ctx, settlementPrefix+responseID, &s); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if s.Status == models.SettlementStatusCompleted {
		return nil
	}
	return l.st.Delete(ctx, settlementPrefix+responseID)
}

// --- helpers ---

func (l *KV) getJSON(ctx context.Context, key string, v any) error {
	data, err := l.st.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (l *KV) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return l.st.Set(ctx, key, data)
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
