// Package watcher thanks senders of incoming transfers to the agent's address.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/events"
	"github.com/seal-agent/backend/internal/metrics"
	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/store"
)

var ErrNoAddress = errors.New("OUR_ADDRESS is not set")

const txPrefix = "transaction:"

type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

type ThanksJournal interface {
	Record(ctx context.Context, t *models.ThanksPost) error
}

type Watcher struct {
	st       store.Store
	poster   Poster
	address  string
	interval time.Duration
	journal  ThanksJournal
	pub      events.Publisher
	log      *zap.Logger
}

// New builds a watcher. journal and pub may be nil.
func New(st store.Store, poster Poster, ourAddress string, interval time.Duration, journal ThanksJournal, pub events.Publisher, log *zap.Logger) *Watcher {
	return &Watcher{
		st:       st,
		poster:   poster,
		address:  ourAddress,
		interval: interval,
		journal:  journal,
		pub:      pub,
		log:      log,
	}
}

// Run scans on a fixed interval until ctx is cancelled. Scans never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	if w.address == "" {
		return ErrNoAddress
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			if _, err := w.Scan(context.WithoutCancel(ctx)); err != nil {
				w.log.Warn("transaction scan failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	sched.Start()
	w.log.Info("transaction watcher started", zap.String("address", w.address), zap.Duration("interval", w.interval))
	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		w.log.Warn("scheduler shutdown", zap.Error(err))
	}
	return ctx.Err()
}

// Scan handles every unprocessed transaction record once and returns how
// many thank-you posts were made.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	keys, err := w.st.Keys(ctx, txPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	posted := 0
	for _, key := range keys {
		ok, err := w.handle(ctx, key)
		if err != nil {
			w.log.Warn("transaction not handled", zap.String("key", key), zap.Error(err))
			continue
		}
		if ok {
			posted++
		}
	}
	return posted, nil
}

func (w *Watcher) handle(ctx context.Context, key string) (bool, error) {
	raw, err := w.st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var tx models.WatchedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		// Undecodable records are parked so they are not retried forever.
		parked, _ := json.Marshal(models.WatchedTransaction{
			Hash:      strings.TrimPrefix(key, txPrefix),
			Processed: true,
			Error:     "undecodable record: " + err.Error(),
		})
		return false, w.st.Set(ctx, key, parked)
	}
	if tx.Processed {
		return false, nil
	}
	if tx.Hash == "" {
		tx.Hash = strings.TrimPrefix(key, txPrefix)
	}

	sender, value, ok := w.incoming(tx)
	if !ok {
		tx.Processed = true
		return false, w.save(ctx, key, tx)
	}

	postID, err := w.poster.Post(ctx, ThanksText(sender, value))
	if err != nil {
		// Left unprocessed so the next scan retries the post.
		return false, fmt.Errorf("post thanks for %s: %w", tx.Hash, err)
	}

	tx.Processed = true
	if err := w.save(ctx, key, tx); err != nil {
		return true, err
	}

	metrics.ThanksPosts.Inc()
	w.log.Info("thanked sender", zap.String("tx_hash", tx.Hash), zap.String("sender", sender), zap.String("value", value))

	if w.journal != nil {
		if err := w.journal.Record(ctx, &models.ThanksPost{TxHash: tx.Hash, Sender: sender, Value: value, PostID: postID}); err != nil {
			w.log.Warn("thanks journal write failed", zap.Error(err))
		}
	}
	if w.pub != nil {
		if err := w.pub.Publish(ctx, events.StreamSettlement, events.New(events.EventThanksPosted, "", map[string]any{
			"tx_hash": tx.Hash,
			"sender":  sender,
			"value":   value,
			"post_id": postID,
		})); err != nil {
			w.log.Warn("publish event failed", zap.String("type", events.EventThanksPosted), zap.Error(err))
		}
	}
	return true, nil
}

// incoming finds a positive balance change to our address and the first
// input address that is not ours.
func (w *Watcher) incoming(tx models.WatchedTransaction) (sender, value string, ok bool) {
	for _, bc := range tx.BalanceChanges {
		v := strings.TrimSpace(bc.Value)
		if bc.Address == w.address && v != "" && !strings.HasPrefix(v, "-") && strings.Trim(v, "0.+") != "" {
			value = strings.TrimPrefix(v, "+")
			break
		}
	}
	if value == "" {
		return "", "", false
	}
	for _, in := range tx.Inputs {
		if in.Address != "" && in.Address != w.address {
			return in.Address, value, true
		}
	}
	return "", "", false
}

func (w *Watcher) save(ctx context.Context, key string, tx models.WatchedTransaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return w.st.Set(ctx, key, data)
}

func ThanksText(sender, value string) string {
	return fmt.Sprintf("Thank you %s for feeding the seal %s 🐟", sender, value)
}
