// Package ingestion polls mentions of the open campaign and settles them.
package ingestion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/classifier"
	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/events"
	"github.com/seal-agent/backend/internal/ledger"
	"github.com/seal-agent/backend/internal/metrics"
	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/policy"
	"github.com/seal-agent/backend/internal/social"
	"github.com/seal-agent/backend/internal/transfer"
)

// State is the loop's current step.
type State string

const (
	StateIdle     State = "IDLE"
	StateFetching State = "FETCHING"
	StateScoring  State = "SCORING"
	StatePaying   State = "PAYING"
	StateReplying State = "REPLYING"
	StateAwaiting State = "AWAITING"
	StateSleeping State = "SLEEPING"
	StateDone     State = "DONE"
)

const (
	defaultFetchPageSize = 100
	defaultMaxPages      = 200
	// createdSkew widens the first fetch window to absorb clock drift
	// between this host and the platform.
	createdSkew = time.Minute
)

// ErrFetchIncomplete means pagination hit the page limit before reaching
// the watermark; nothing from that fetch is processed.
var ErrFetchIncomplete = errors.New("mention backlog exceeds page limit")

type Classifier interface {
	Classify(ctx context.Context, r classifier.Rubric, responseText string) models.Verdict
	DetectPaymentTarget(ctx context.Context, responseText string) models.TargetDetection
}

type Payer interface {
	Pay(ctx context.Context, d models.Decision) (transfer.Receipt, error)
}

type PayoutJournal interface {
	Record(ctx context.Context, p *models.Payout) error
}

type Config struct {
	Flow            string
	PageSize        int // candidates per batch
	FetchPageSize   int // mentions per API page
	MaxPages        int
	InitialLookback time.Duration
	EmptyPollDelay  time.Duration
	BatchDelay      time.Duration
	RetryDelay      time.Duration
	CampaignTTL     time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Flow:            cfg.RewardFlow,
		PageSize:        cfg.PollBatchSize,
		InitialLookback: cfg.InitialLookback,
		EmptyPollDelay:  cfg.EmptyPollDelay,
		BatchDelay:      cfg.BatchDelay,
		RetryDelay:      cfg.RetryDelay,
		CampaignTTL:     cfg.CampaignTTL,
	}
}

// Sleeper pauses for d and reports false when ctx ended first.
type Sleeper func(ctx context.Context, d time.Duration) bool

func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type Deps struct {
	Ledger     ledger.Ledger
	Social     social.Client
	Classifier Classifier
	Policy     policy.Policy
	Payer      Payer
	Publisher  events.Publisher // optional
	Journal    PayoutJournal    // optional
}

type Loop struct {
	cfg Config
	Deps
	log   *zap.Logger
	now   func() time.Time
	sleep Sleeper

	mu     sync.RWMutex
	state  State
	userID string
}

func NewLoop(cfg Config, deps Deps, log *zap.Logger) *Loop {
	if cfg.FetchPageSize <= 0 {
		cfg.FetchPageSize = defaultFetchPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Loop{
		cfg:   cfg,
		Deps:  deps,
		log:   log,
		now:   time.Now,
		sleep: Sleep,
		state: StateIdle,
	}
}

// WithClock overrides the time source and sleeper.
func (l *Loop) WithClock(now func() time.Time, sleep Sleeper) *Loop {
	l.now = now
	l.sleep = sleep
	return l
}

func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run processes the campaign until it leaves OPEN or ctx is cancelled. Stop
// is honoured between steps; in-flight external calls run to completion.
func (l *Loop) Run(ctx context.Context, campaignID string) error {
	log := l.log.With(zap.String("campaign_id", campaignID))
	ext := context.WithoutCancel(ctx)
	seen := make(map[string]struct{})
	defer l.setState(StateDone)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c, err := l.Ledger.GetCampaign(ext, campaignID)
		if err != nil {
			if errors.Is(err, ledger.ErrCampaignNotFound) {
				log.Error("campaign vanished from ledger")
				return err
			}
			log.Warn("ledger read failed", zap.Error(err))
			if !l.pause(ctx, l.cfg.RetryDelay) {
				return ctx.Err()
			}
			continue
		}
		if !c.IsOpen() {
			log.Info("campaign closed", zap.String("status", c.Status))
			return nil
		}
		if l.alreadyRewarded(ext, c, log) {
			return nil
		}
		if c.Expired(l.now(), l.cfg.CampaignTTL) {
			l.expire(ext, c, log)
			return nil
		}

		l.setState(StateFetching)
		batch, err := l.fetch(ext, c, seen)
		if err != nil {
			if errors.Is(err, ErrFetchIncomplete) {
				log.Error("mention backlog not fully fetched, watermark held", zap.Int("max_pages", l.cfg.MaxPages))
			} else {
				log.Warn("fetch mentions failed", zap.Error(err))
			}
			if !l.pause(ctx, l.cfg.RetryDelay) {
				return ctx.Err()
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(batch) == 0 {
			if !l.pause(ctx, l.cfg.EmptyPollDelay) {
				return ctx.Err()
			}
			continue
		}

		rewarded, processed, err := l.processBatch(ctx, c, batch, seen)
		if mark, ok := watermark(batch, processed); ok {
			if err := l.Ledger.UpdateWatermark(ext, c.ID, mark); err != nil {
				log.Warn("persist watermark failed", zap.Error(err))
			}
		}
		if err != nil {
			return err
		}
		if rewarded {
			return nil
		}
		if !l.pause(ctx, l.cfg.BatchDelay) {
			return ctx.Err()
		}
	}
}

// watermark is the newest handled mention's time. The next fetch starts
// strictly after it, so it is withheld when an unhandled mention shares
// that timestamp.
func watermark(batch []models.CandidateResponse, processed int) (time.Time, bool) {
	if processed == 0 {
		return time.Time{}, false
	}
	last := batch[processed-1].CreatedAt
	if processed < len(batch) && batch[processed].CreatedAt.Equal(last) {
		return time.Time{}, false
	}
	return last, true
}

func (l *Loop) pause(ctx context.Context, d time.Duration) bool {
	l.setState(StateSleeping)
	return l.sleep(ctx, d)
}

// fetch pulls every mention newer than the watermark, following pages to
// the end, and returns the oldest batch of them. Mentions that cannot be in
// scope (other posts, the bot itself) ride along without using batch slots.
func (l *Loop) fetch(ctx context.Context, c *models.Campaign, seen map[string]struct{}) ([]models.CandidateResponse, error) {
	if l.userID == "" {
		id, err := l.Social.Me(ctx)
		if err != nil {
			return nil, err
		}
		l.userID = id
	}

	since := l.since(c)
	var all []models.CandidateResponse
	token := ""
	for page := 0; ; page++ {
		if page == l.cfg.MaxPages {
			return nil, ErrFetchIncomplete
		}
		p, err := l.Social.Mentions(ctx, social.MentionQuery{
			UserID:          l.userID,
			Since:           since,
			PageSize:        l.cfg.FetchPageSize,
			PaginationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range p.Mentions {
			if _, dup := seen[m.ResponseID]; dup {
				continue
			}
			if c.LastProcessedAt != nil && !m.CreatedAt.After(*c.LastProcessedAt) {
				continue
			}
			all = append(all, m)
		}
		if p.NextToken == "" {
			break
		}
		token = p.NextToken
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all[:l.batchLen(all, c.ID)], nil
}

// since is the lower bound of the mention query. Nothing older than the
// campaign post can reply to it.
func (l *Loop) since(c *models.Campaign) time.Time {
	since := l.now().Add(-l.cfg.InitialLookback)
	if !c.CreatedAt.IsZero() {
		if created := c.CreatedAt.Add(-createdSkew); created.After(since) {
			since = created
		}
	}
	if c.LastProcessedAt != nil && c.LastProcessedAt.After(since) {
		since = *c.LastProcessedAt
	}
	return since
}

// batchLen counts how many of the sorted mentions form the next batch:
// up to PageSize in-scope candidates, extended so the batch never ends in
// the middle of a run of equal timestamps.
func (l *Loop) batchLen(all []models.CandidateResponse, campaignID string) int {
	inScope := 0
	for i, m := range all {
		if i > 0 && inScope >= l.cfg.PageSize && !m.CreatedAt.Equal(all[i-1].CreatedAt) {
			return i
		}
		if m.ReferencedCampaignID == campaignID && m.AuthorID != l.userID {
			inScope++
		}
	}
	return len(all)
}

// processBatch handles candidates in order and stops at the first
// successful payment. processed counts candidates fully handled.
func (l *Loop) processBatch(ctx context.Context, c *models.Campaign, batch []models.CandidateResponse, seen map[string]struct{}) (rewarded bool, processed int, err error) {
	for _, cand := range batch {
		if err := ctx.Err(); err != nil {
			return false, processed, err
		}
		seen[cand.ResponseID] = struct{}{}
		processed++

		log := l.log.With(
			zap.String("campaign_id", c.ID),
			zap.String("response_id", cand.ResponseID),
			zap.String("author_id", cand.AuthorID),
		)

		if cand.ReferencedCampaignID != c.ID {
			metrics.Candidates.WithLabelValues("stale").Inc()
			log.Debug("discarding reply to another post", zap.String("referenced", cand.ReferencedCampaignID))
			continue
		}
		if cand.AuthorID == l.userID {
			continue
		}

		if l.handle(ctx, c, cand, log) {
			return true, processed, nil
		}
	}
	return false, processed, nil
}

// handle runs one candidate through scoring and acts on the decision.
// Reports true when the campaign was rewarded.
func (l *Loop) handle(ctx context.Context, c *models.Campaign, cand models.CandidateResponse, log *zap.Logger) bool {
	ext := context.WithoutCancel(ctx)

	pending, err := l.Ledger.GetPendingTarget(ext, cand.AuthorID)
	switch {
	case errors.Is(err, ledger.ErrPendingNotFound):
		pending = nil
	case err != nil:
		log.Warn("pending lookup failed, skipping candidate", zap.Error(err))
		metrics.Candidates.WithLabelValues("error").Inc()
		return false
	}

	if pending != nil && pending.CampaignID != c.ID {
		if l.cfg.Flow == config.FlowAddress {
			metrics.Candidates.WithLabelValues("filtered").Inc()
			log.Debug("author has pending target on another campaign", zap.String("pending_campaign", pending.CampaignID))
			return false
		}
		pending = nil
	}

	if pending != nil {
		return l.handlePending(ctx, c, cand, pending, log)
	}

	l.setState(StateScoring)
	v := l.Classifier.Classify(ext, classifier.RubricFor(c), cand.Text)

	st := policy.State{AuthorID: cand.AuthorID}
	if l.cfg.Flow == config.FlowAddress {
		claimed, err := l.Ledger.HasClaimed(ext, cand.AuthorID)
		if err != nil {
			log.Warn("claim lookup failed, skipping candidate", zap.Error(err))
			metrics.Candidates.WithLabelValues("error").Inc()
			return false
		}
		st.AuthorClaimed = claimed
	}

	d, ok := l.Policy.Decide(v, *c, st)
	if !ok {
		return false
	}
	metrics.Decisions.WithLabelValues(d.Kind).Inc()
	log.Info("decision",
		zap.String("kind", d.Kind),
		zap.Int("score", v.Score),
		zap.String("reason", d.Reason),
	)

	switch d.Kind {
	case models.DecisionPay:
		return l.settle(ctx, c, cand, d, log)
	case models.DecisionAwaitTarget:
		l.await(ext, c, cand, d, log)
	default:
		metrics.Candidates.WithLabelValues("replied").Inc()
		l.reply(ext, cand, d.Reply, log)
	}
	return false
}

func (l *Loop) handlePending(ctx context.Context, c *models.Campaign, cand models.CandidateResponse, pending *models.PendingTarget, log *zap.Logger) bool {
	ext := context.WithoutCancel(ctx)

	l.setState(StateScoring)
	det := l.Classifier.DetectPaymentTarget(ext, cand.Text)

	d, ok := l.Policy.DecidePending(*pending, *c, det)
	if !ok {
		return false
	}
	metrics.Decisions.WithLabelValues(d.Kind).Inc()
	log.Info("pending author follow-up", zap.String("kind", d.Kind), zap.Bool("target_present", det.Present))

	if d.Kind == models.DecisionPay {
		return l.settle(ctx, c, cand, d, log)
	}
	metrics.Candidates.WithLabelValues("replied").Inc()
	l.reply(ext, cand, d.Reply, log)
	return false
}

func (l *Loop) await(ctx context.Context, c *models.Campaign, cand models.CandidateResponse, d models.Decision, log *zap.Logger) {
	l.setState(StateAwaiting)
	if err := l.Ledger.SetPendingTarget(ctx, cand.AuthorID, c.ID, d.Amount, d.Currency); err != nil {
		log.Warn("record pending target failed", zap.Error(err))
	}
	if err := l.Ledger.SetPendingAuthor(ctx, c.ID, cand.AuthorID); err != nil {
		log.Warn("mark campaign pending author failed", zap.Error(err))
	}
	metrics.Candidates.WithLabelValues("awaiting").Inc()
	l.reply(ctx, cand, d.Reply, log)
	l.publish(ctx, events.EventAwaitingTarget, c.ID, map[string]any{
		"author_id":   cand.AuthorID,
		"response_id": cand.ResponseID,
		"amount":      d.Amount,
		"currency":    d.Currency,
	})
}

// alreadyRewarded reports whether the campaign has a recorded claim. An OPEN
// campaign with a claim lost its status write after paying; the status is
// repaired here and nothing further is paid.
func (l *Loop) alreadyRewarded(ctx context.Context, c *models.Campaign, log *zap.Logger) bool {
	claim, err := l.Ledger.CampaignClaim(ctx, c.ID)
	if errors.Is(err, ledger.ErrClaimNotFound) {
		return false
	}
	if err != nil {
		// settle checks again before any transfer.
		log.Warn("campaign claim lookup failed", zap.Error(err))
		return false
	}
	log.Warn("campaign already has a claim, repairing status", zap.String("winner_author_id", claim.AuthorID))
	if err := l.Ledger.MarkRewarded(ctx, c.ID, claim.AuthorID); err != nil {
		log.Error("repair campaign status failed", zap.Error(err))
	} else {
		metrics.Campaigns.WithLabelValues(models.CampaignStatusRewarded).Inc()
	}
	return true
}

// settle moves value for a PAY decision: intent, transfer, then the
// single-key writes that record it. Reports true on a confirmed transfer,
// or when the campaign turns out to be paid already.
func (l *Loop) settle(ctx context.Context, c *models.Campaign, cand models.CandidateResponse, d models.Decision, log *zap.Logger) bool {
	ext := context.WithoutCancel(ctx)
	l.setState(StatePaying)

	claim, err := l.Ledger.CampaignClaim(ext, c.ID)
	switch {
	case err == nil:
		log.Error("campaign already paid, not paying again", zap.String("winner_author_id", claim.AuthorID))
		metrics.Candidates.WithLabelValues("duplicate").Inc()
		if err := l.Ledger.MarkRewarded(ext, c.ID, claim.AuthorID); err != nil {
			log.Error("repair campaign status failed", zap.Error(err))
		}
		return true
	case !errors.Is(err, ledger.ErrClaimNotFound):
		log.Warn("campaign claim lookup failed, skipping payment", zap.Error(err))
		metrics.Candidates.WithLabelValues("error").Inc()
		return false
	}

	err = l.Ledger.BeginSettlement(ext, models.Settlement{
		ResponseID: cand.ResponseID,
		CampaignID: c.ID,
		AuthorID:   cand.AuthorID,
		Target:     d.Target.Value,
		Amount:     d.Amount,
		Currency:   d.Currency,
	})
	if errors.Is(err, ledger.ErrSettlementExists) {
		log.Error("settlement already recorded for response, not paying again", zap.Error(err))
		metrics.Candidates.WithLabelValues("duplicate").Inc()
		return false
	}
	if err != nil {
		log.Warn("write settlement intent failed, skipping payment", zap.Error(err))
		metrics.Candidates.WithLabelValues("error").Inc()
		return false
	}

	receipt, err := l.Payer.Pay(ext, d)
	if err != nil {
		if abortErr := l.Ledger.AbortSettlement(ext, cand.ResponseID); abortErr != nil {
			log.Error("abort settlement failed", zap.Error(abortErr))
		}
		metrics.Candidates.WithLabelValues("transfer_failed").Inc()
		l.publish(ext, events.EventTransferFailed, c.ID, map[string]any{
			"author_id":   cand.AuthorID,
			"response_id": cand.ResponseID,
			"error":       err.Error(),
		})
		return false
	}

	// From here on the transfer happened; every failure is logged and the
	// remaining writes still run.
	if err := l.Ledger.RecordClaim(ext, models.Claim{
		AuthorID:   cand.AuthorID,
		CampaignID: c.ID,
		ResponseID: cand.ResponseID,
		Amount:     d.Amount,
		Currency:   d.Currency,
	}); err != nil {
		log.Error("record claim after transfer failed", zap.String("tx_ref", receipt.TxRef), zap.Error(err))
	}
	if err := l.Ledger.MarkRewarded(ext, c.ID, cand.AuthorID); err != nil {
		log.Error("mark campaign rewarded failed", zap.Error(err))
	}
	if err := l.Ledger.CompleteSettlement(ext, cand.ResponseID, receipt.TxRef); err != nil {
		log.Error("complete settlement failed", zap.Error(err))
	}
	if err := l.Ledger.ClearPendingTarget(ext, cand.AuthorID); err != nil {
		log.Warn("clear pending target failed", zap.Error(err))
	}
	if _, err := l.Ledger.ClearPendingForCampaign(ext, c.ID); err != nil {
		log.Warn("clear campaign pending targets failed", zap.Error(err))
	}

	metrics.Candidates.WithLabelValues("paid").Inc()
	metrics.Campaigns.WithLabelValues(models.CampaignStatusRewarded).Inc()
	log.Info("reward paid",
		zap.String("route", receipt.Route),
		zap.String("tx_ref", receipt.TxRef),
		zap.Int64("amount", d.Amount),
		zap.String("currency", d.Currency),
	)

	l.reply(ext, cand, d.Reply, log)
	l.publish(ext, events.EventRewardPaid, c.ID, map[string]any{
		"author_id":   cand.AuthorID,
		"response_id": cand.ResponseID,
		"amount":      d.Amount,
		"currency":    d.Currency,
		"target_kind": d.Target.Kind,
		"tx_ref":      receipt.TxRef,
	})
	l.publish(ext, events.EventCampaignRewarded, c.ID, map[string]any{"winner_author_id": cand.AuthorID})

	if l.Journal != nil {
		if err := l.Journal.Record(ext, &models.Payout{
			CampaignID: c.ID,
			ResponseID: cand.ResponseID,
			AuthorID:   cand.AuthorID,
			TargetKind: d.Target.Kind,
			Target:     d.Target.Value,
			Amount:     d.Amount,
			Currency:   d.Currency,
			TxRef:      receipt.TxRef,
		}); err != nil {
			log.Warn("payout journal write failed", zap.Error(err))
		}
	}
	return true
}

func (l *Loop) expire(ctx context.Context, c *models.Campaign, log *zap.Logger) {
	if err := l.Ledger.MarkExpired(ctx, c.ID); err != nil {
		log.Warn("mark campaign expired failed", zap.Error(err))
		return
	}
	n, err := l.Ledger.ClearPendingForCampaign(ctx, c.ID)
	if err != nil {
		log.Warn("clear pending targets failed", zap.Error(err))
	}
	metrics.Campaigns.WithLabelValues(models.CampaignStatusExpired).Inc()
	log.Info("campaign expired", zap.Time("created_at", c.CreatedAt), zap.Int("pending_cleared", n))
	l.publish(ctx, events.EventCampaignExpired, c.ID, nil)
}

func (l *Loop) reply(ctx context.Context, cand models.CandidateResponse, text string, log *zap.Logger) {
	if text == "" {
		return
	}
	l.setState(StateReplying)
	if _, err := l.Social.Reply(ctx, cand.ResponseID, text); err != nil {
		log.Warn("reply failed", zap.Error(err))
	}
}

func (l *Loop) publish(ctx context.Context, typ, campaignID string, payload map[string]any) {
	if l.Publisher == nil {
		return
	}
	if err := l.Publisher.Publish(ctx, events.StreamSettlement, events.New(typ, campaignID, payload)); err != nil {
		l.log.Warn("publish event failed", zap.String("type", typ), zap.Error(err))
	}
}
