package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/ledger"
	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/policy"
	"github.com/seal-agent/backend/internal/store"
)

type fakeQuestions struct {
	q     models.Question
	err   error
	calls int
}

func (f *fakeQuestions) Generate(context.Context) (models.Question, error) {
	f.calls++
	return f.q, f.err
}

type fakePoster struct {
	posts []string
}

func (f *fakePoster) Post(_ context.Context, text string) (string, error) {
	f.posts = append(f.posts, text)
	return fmt.Sprintf("post-%d", len(f.posts)), nil
}

// closingIngester closes every campaign it is handed with the given status.
type closingIngester struct {
	ledger *ledger.KV
	status string
	ids    []string
}

func (f *closingIngester) Run(ctx context.Context, id string) error {
	f.ids = append(f.ids, id)
	if f.status == models.CampaignStatusRewarded {
		return f.ledger.MarkRewarded(ctx, id, "winner")
	}
	return f.ledger.MarkExpired(ctx, id)
}

type fixture struct {
	m      *Machine
	ledger *ledger.KV
	qs     *fakeQuestions
	poster *fakePoster
	in     *closingIngester
	sleeps []time.Duration
	budget int
	cancel context.CancelFunc
}

func newFixture(t *testing.T, enabled bool) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.NewKV(store.NewMemoryStore()),
		qs:     &fakeQuestions{q: models.Question{Context: "CKB stores state in cells.", Prompt: "What is a cell?", ReferenceAnswer: "A UTXO-like box", Amount: 200}},
		poster: &fakePoster{},
	}
	f.in = &closingIngester{ledger: f.ledger, status: models.CampaignStatusRewarded}
	bands := policy.Bands{policy.CurrencyCKB: {Min: 61, Max: 690}}
	f.m = NewMachine(Config{
		TransfersEnabled: enabled,
		Currency:         policy.CurrencyCKB,
		DefaultReward:    100,
		CreateRetryDelay: time.Minute,
		CampaignGap:      10 * time.Minute,
	}, f.ledger, f.qs, f.poster, f.in, bands, nil, zap.NewNop()).WithSleeper(f.sleep)
	return f
}

func (f *fixture) sleep(ctx context.Context, d time.Duration) bool {
	f.sleeps = append(f.sleeps, d)
	if len(f.sleeps) >= f.budget {
		f.cancel()
		return false
	}
	return ctx.Err() == nil
}

func (f *fixture) run(sleeps int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.cancel = cancel
	f.budget = sleeps
	return f.m.Run(ctx)
}

func TestRunRefusesWithoutTransfers(t *testing.T) {
	f := newFixture(t, false)
	assert.ErrorIs(t, f.run(1), ErrTransfersDisabled)
	assert.Zero(t, f.qs.calls)
}

func TestRunCreatesCampaignAndPauses(t *testing.T) {
	f := newFixture(t, true)

	err := f.run(1)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, "CKB stores state in cells.\n\n🔍 What is a cell?\n\n💰 Reward: 200 CKB for the best answer! 🎉", f.poster.posts[0])
	assert.Equal(t, []string{"post-1"}, f.in.ids)

	c, err := f.ledger.GetCampaign(context.Background(), "post-1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRewarded, c.Status)
	assert.Equal(t, int64(200), c.RewardAmount)
	assert.Equal(t, "A UTXO-like box", c.ReferenceAnswer)
	assert.Equal(t, []time.Duration{10 * time.Minute}, f.sleeps)

	st, _ := f.m.State()
	assert.Equal(t, StateNone, st)
}

func TestRunRunsCampaignsBackToBack(t *testing.T) {
	f := newFixture(t, true)
	f.in.status = models.CampaignStatusExpired

	err := f.run(2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"post-1", "post-2"}, f.in.ids)
	assert.Equal(t, []time.Duration{10 * time.Minute, 10 * time.Minute}, f.sleeps)
}

func TestRunDefaultRewardOutOfBand(t *testing.T) {
	for _, amount := range []int64{0, 5000, 10} {
		f := newFixture(t, true)
		f.qs.q.Amount = amount

		_ = f.run(1)
		c, err := f.ledger.GetCampaign(context.Background(), "post-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), c.RewardAmount, "amount %d", amount)
	}
}

func TestRunRetriesFailedCreation(t *testing.T) {
	f := newFixture(t, true)
	f.qs.err = errors.New("oracle down")

	err := f.run(2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, f.qs.calls)
	assert.Empty(t, f.poster.posts)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, f.sleeps)
}

func TestRunResumesOpenCampaign(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.ledger.CreateCampaign(context.Background(), &models.Campaign{ID: "existing", RewardAmount: 100, Currency: "CKB"}))

	_ = f.run(1)
	assert.Zero(t, f.qs.calls)
	assert.Empty(t, f.poster.posts)
	assert.Equal(t, []string{"existing"}, f.in.ids)
}
