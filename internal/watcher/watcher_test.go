package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/seal-agent/backend/internal/events"
	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/store"
)

const ours = "ckt1qours"

type fakePoster struct {
	err   error
	posts []string
}

func (f *fakePoster) Post(_ context.Context, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.posts = append(f.posts, text)
	return "p1", nil
}

type fakeJournal struct{ rows []*models.ThanksPost }

func (f *fakeJournal) Record(_ context.Context, t *models.ThanksPost) error {
	f.rows = append(f.rows, t)
	return nil
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, events.Event) error {
	f.calls++
	return errors.New("redis down")
}

func put(t *testing.T, st store.Store, tx models.WatchedTransaction) {
	t.Helper()
	data, err := json.Marshal(tx)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), txPrefix+tx.Hash, data))
}

func load(t *testing.T, st store.Store, hash string) models.WatchedTransaction {
	t.Helper()
	raw, err := st.Get(context.Background(), txPrefix+hash)
	require.NoError(t, err)
	var tx models.WatchedTransaction
	require.NoError(t, json.Unmarshal(raw, &tx))
	return tx
}

func incomingTx(hash string) models.WatchedTransaction {
	return models.WatchedTransaction{
		Hash:   hash,
		Inputs: []models.TxInput{{Address: "ckt1qsender"}},
		BalanceChanges: []models.BalanceChange{
			{Address: "ckt1qsender", Value: "-100.5"},
			{Address: ours, Value: "100"},
		},
	}
}

func TestScanPostsThanksOnce(t *testing.T) {
	st := store.NewMemoryStore()
	poster := &fakePoster{}
	journal := &fakeJournal{}
	w := New(st, poster, ours, time.Second, journal, nil, zap.NewNop())

	put(t, st, incomingTx("0x01"))

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"Thank you ckt1qsender for feeding the seal 100 🐟"}, poster.posts)
	assert.True(t, load(t, st, "0x01").Processed)
	require.Len(t, journal.rows, 1)
	assert.Equal(t, "p1", journal.rows[0].PostID)

	n, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, poster.posts, 1)
}

func TestScanSkipsOutgoingAndSelf(t *testing.T) {
	tests := []struct {
		name string
		tx   models.WatchedTransaction
	}{
		{"outgoing", models.WatchedTransaction{
			Hash:           "0x02",
			Inputs:         []models.TxInput{{Address: ours}},
			BalanceChanges: []models.BalanceChange{{Address: ours, Value: "-10"}},
		}},
		{"zero", models.WatchedTransaction{
			Hash:           "0x03",
			Inputs:         []models.TxInput{{Address: "ckt1qsender"}},
			BalanceChanges: []models.BalanceChange{{Address: ours, Value: "0.0"}},
		}},
		{"self transfer", models.WatchedTransaction{
			Hash:           "0x04",
			Inputs:         []models.TxInput{{Address: ours}},
			BalanceChanges: []models.BalanceChange{{Address: ours, Value: "5"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			poster := &fakePoster{}
			w := New(st, poster, ours, time.Second, nil, nil, zap.NewNop())
			put(t, st, tt.tx)

			n, err := w.Scan(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, poster.posts)
			assert.True(t, load(t, st, tt.tx.Hash).Processed)
		})
	}
}

func TestScanRetriesFailedPost(t *testing.T) {
	st := store.NewMemoryStore()
	poster := &fakePoster{err: errors.New("429")}
	w := New(st, poster, ours, time.Second, nil, nil, zap.NewNop())
	put(t, st, incomingTx("0x05"))

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, load(t, st, "0x05").Processed)

	poster.err = nil
	n, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanParksUndecodable(t *testing.T) {
	st := store.NewMemoryStore()
	w := New(st, &fakePoster{}, ours, time.Second, nil, nil, zap.NewNop())
	require.NoError(t, st.Set(context.Background(), txPrefix+"0x06", []byte("{not json")))

	_, err := w.Scan(context.Background())
	require.NoError(t, err)
	tx := load(t, st, "0x06")
	assert.True(t, tx.Processed)
	assert.Contains(t, tx.Error, "undecodable")
}

func TestRunRequiresAddress(t *testing.T) {
	w := New(store.NewMemoryStore(), &fakePoster{}, "", time.Second, nil, nil, zap.NewNop())
	assert.ErrorIs(t, w.Run(context.Background()), ErrNoAddress)
}

func TestRunScansImmediatelyAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := store.NewMemoryStore()
	poster := &fakePoster{}
	w := New(st, poster, ours, time.Hour, nil, nil, zap.NewNop())
	put(t, st, incomingTx("0x07"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		tx := load(t, st, "0x07")
		return tx.Processed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScanLogsPublishFailure(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &failingPublisher{}
	core, logs := observer.New(zap.WarnLevel)
	w := New(st, &fakePoster{}, ours, time.Second, nil, pub, zap.New(core))

	put(t, st, incomingTx("0x09"))

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, pub.calls)
	assert.True(t, load(t, st, "0x09").Processed, "a lost event must not re-post the thanks")

	entries := logs.FilterMessage("publish event failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, events.EventThanksPosted, entries[0].ContextMap()["type"])
}
