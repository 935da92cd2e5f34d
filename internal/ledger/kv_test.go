package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLedger() (*KV, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewKV(store.NewMemoryStore()).WithClock(c.now), c
}

func newTestLedgerStore() (*KV, *store.MemoryStore) {
	st := store.NewMemoryStore()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewKV(st).WithClock(c.now), st
}

func openCampaign(t *testing.T, l *KV, id string) *models.Campaign {
	t.Helper()
	c := &models.Campaign{ID: id, Context: "ctx", Prompt: "What is a cell?", ReferenceAnswer: "UTXO", RewardAmount: 100, Currency: "CKB"}
	require.NoError(t, l.CreateCampaign(context.Background(), c))
	return c
}

func TestCreateCampaignSingleOpen(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	c := openCampaign(t, l, "100")
	assert.Equal(t, models.CampaignStatusOpen, c.Status)
	assert.False(t, c.CreatedAt.IsZero())

	err := l.CreateCampaign(ctx, &models.Campaign{ID: "101"})
	assert.ErrorIs(t, err, ErrCampaignOpen)

	require.NoError(t, l.MarkExpired(ctx, "100"))
	err = l.CreateCampaign(ctx, &models.Campaign{ID: "100"})
	assert.ErrorIs(t, err, ErrCampaignExists)

	openCampaign(t, l, "101")
	open, err := l.GetOpenCampaign(ctx)
	require.NoError(t, err)
	assert.Equal(t, "101", open.ID)
}

func TestGetOpenCampaignNone(t *testing.T) {
	l, _ := newTestLedger()
	_, err := l.GetOpenCampaign(context.Background())
	assert.ErrorIs(t, err, ErrNoOpenCampaign)

	_, err = l.GetCampaign(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestTerminalStatusesAreSticky(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	openCampaign(t, l, "1")

	require.NoError(t, l.MarkRewarded(ctx, "1", "alice"))
	assert.ErrorIs(t, l.MarkExpired(ctx, "1"), ErrInvalidTransition)
	assert.ErrorIs(t, l.MarkRewarded(ctx, "1", "bob"), ErrInvalidTransition)
	assert.ErrorIs(t, l.SetPendingAuthor(ctx, "1", "bob"), ErrInvalidTransition)

	c, err := l.GetCampaign(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRewarded, c.Status)
	assert.Equal(t, "alice", c.WinnerAuthorID)
	require.NotNil(t, c.RewardedAt)
}

func TestUpdateWatermarkForwardOnly(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLedger()
	openCampaign(t, l, "1")

	later := clk.t.Add(time.Hour)
	require.NoError(t, l.UpdateWatermark(ctx, "1", later))
	require.NoError(t, l.UpdateWatermark(ctx, "1", clk.t))

	c, _ := l.GetCampaign(ctx, "1")
	require.NotNil(t, c.LastProcessedAt)
	assert.True(t, c.LastProcessedAt.Equal(later))
}

func TestRecordClaimMonotonic(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	claimed, err := l.HasClaimed(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, claimed)

	first := models.Claim{AuthorID: "alice", CampaignID: "1", Amount: 150, Currency: "CKB"}
	require.NoError(t, l.RecordClaim(ctx, first))

	second := first
	second.Amount = 999
	assert.ErrorIs(t, l.RecordClaim(ctx, second), ErrClaimExists)

	got, err := l.GetClaim(ctx, "alice", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Amount)

	claimed, err = l.HasClaimed(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, claimed)

	// a second campaign claim is a separate record
	require.NoError(t, l.RecordClaim(ctx, models.Claim{AuthorID: "alice", CampaignID: "2", Amount: 70, Currency: "CKB"}))
	all, err := l.ListClaims(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = l.GetClaim(ctx, "bob", "1")
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestHasClaimedDoesNotMatchPrefixAuthors(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	require.NoError(t, l.RecordClaim(ctx, models.Claim{AuthorID: "12", CampaignID: "1", Amount: 1}))

	claimed, err := l.HasClaimed(ctx, "1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaimKeysSeparateColonIDs(t *testing.T) {
	ctx := context.Background()
	l, st := newTestLedgerStore()
	require.NoError(t, l.RecordClaim(ctx, models.Claim{AuthorID: "a:b", CampaignID: "c1", Amount: 1}))

	claimed, err := l.HasClaimed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = l.HasClaimed(ctx, "a:b")
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := l.GetClaim(ctx, "a:b", "c1")
	require.NoError(t, err)
	assert.Equal(t, "a:b", got.AuthorID)

	keys, err := st.Keys(ctx, "claim:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"claim:a%3Ab:c1"}, keys)
}

func TestCampaignClaim(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	_, err := l.CampaignClaim(ctx, "c1")
	assert.ErrorIs(t, err, ErrClaimNotFound)

	require.NoError(t, l.RecordClaim(ctx, models.Claim{AuthorID: "alice", CampaignID: "c10", Amount: 5}))
	require.NoError(t, l.RecordClaim(ctx, models.Claim{AuthorID: "bob", CampaignID: "c1", Amount: 150}))

	got, err := l.CampaignClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.AuthorID)
	assert.Equal(t, int64(150), got.Amount)

	_, err = l.CampaignClaim(ctx, "1")
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestPendingTargets(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	_, err := l.GetPendingTarget(ctx, "alice")
	assert.ErrorIs(t, err, ErrPendingNotFound)

	require.NoError(t, l.SetPendingTarget(ctx, "alice", "1", 100, "CKB"))
	require.NoError(t, l.SetPendingTarget(ctx, "bob", "1", 100, "CKB"))
	require.NoError(t, l.SetPendingTarget(ctx, "carol", "2", 50, "CKB"))

	p, err := l.GetPendingTarget(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1", p.CampaignID)
	assert.False(t, p.Awarded)

	require.NoError(t, l.ClearPendingTarget(ctx, "alice"))
	_, err = l.GetPendingTarget(ctx, "alice")
	assert.ErrorIs(t, err, ErrPendingNotFound)

	n, err := l.ClearPendingForCampaign(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rest, err := l.ListPendingTargets(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "carol", rest[0].AuthorID)
}

func TestSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	s := models.Settlement{ResponseID: "r1", CampaignID: "1", AuthorID: "alice", Target: "ckb1qxyz", Amount: 150, Currency: "CKB"}

	require.NoError(t, l.BeginSettlement(ctx, s))
	assert.ErrorIs(t, l.BeginSettlement(ctx, s), ErrSettlementExists)

	// abort frees the response for a later pass
	require.NoError(t, l.AbortSettlement(ctx, "r1"))
	require.NoError(t, l.BeginSettlement(ctx, s))

	require.NoError(t, l.CompleteSettlement(ctx, "r1", "0xabc"))
	require.NoError(t, l.AbortSettlement(ctx, "r1"))
	assert.ErrorIs(t, l.BeginSettlement(ctx, s), ErrSettlementExists)

	assert.ErrorIs(t, l.CompleteSettlement(ctx, "nope", "x"), ErrSettlementNotFound)
	assert.NoError(t, l.AbortSettlement(ctx, "nope"))
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"12345", "12345"},
		{"a*b", `a\*b`},
		{"[x]?", `\[x\]\?`},
	}
	for _, tt := range tests {
		if got := escapeGlob(tt.in); got != tt.want {
			t.Errorf("escapeGlob(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
