// Package lifecycle runs campaigns one after another: create, ingest, close, pause.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/events"
	"github.com/seal-agent/backend/internal/ingestion"
	"github.com/seal-agent/backend/internal/ledger"
	"github.com/seal-agent/backend/internal/metrics"
	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/policy"
)

var ErrTransfersDisabled = errors.New("transfers are disabled (IS_TRANSFER=false)")

type State string

const (
	StateNone     State = "NONE"
	StateCreating State = "CREATING"
	StateOpen     State = "OPEN"
	StateRewarded State = "REWARDED"
	StateExpired  State = "EXPIRED"
)

// Ingester drives one campaign until it leaves OPEN.
type Ingester interface {
	Run(ctx context.Context, campaignID string) error
}

type QuestionSource interface {
	Generate(ctx context.Context) (models.Question, error)
}

type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

type Config struct {
	TransfersEnabled bool
	Currency         string
	DefaultReward    int64
	CreateRetryDelay time.Duration
	CampaignGap      time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		TransfersEnabled: cfg.TransfersEnabled,
		Currency:         policy.CurrencyCKB,
		DefaultReward:    cfg.DefaultRewardAmount,
		CreateRetryDelay: cfg.CreateRetryDelay,
		CampaignGap:      cfg.CampaignGap,
	}
}

type Machine struct {
	cfg       Config
	ledger    ledger.Ledger
	questions QuestionSource
	poster    Poster
	ingester  Ingester
	bands     policy.Bands
	pub       events.Publisher
	log       *zap.Logger
	sleep     ingestion.Sleeper

	mu      sync.RWMutex
	state   State
	current string
}

func NewMachine(cfg Config, l ledger.Ledger, q QuestionSource, p Poster, in Ingester, bands policy.Bands, pub events.Publisher, log *zap.Logger) *Machine {
	return &Machine{
		cfg:       cfg,
		ledger:    l,
		questions: q,
		poster:    p,
		ingester:  in,
		bands:     bands,
		pub:       pub,
		log:       log,
		sleep:     ingestion.Sleep,
		state:     StateNone,
	}
}

func (m *Machine) WithSleeper(s ingestion.Sleeper) *Machine {
	m.sleep = s
	return m
}

// State returns the machine state and the campaign it refers to, if any.
func (m *Machine) State() (State, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.current
}

func (m *Machine) setState(s State, campaignID string) {
	m.mu.Lock()
	m.state, m.current = s, campaignID
	m.mu.Unlock()
}

// Run loops until ctx is cancelled. An OPEN campaign left over from a
// previous process is resumed instead of creating a new one.
func (m *Machine) Run(ctx context.Context) error {
	if !m.cfg.TransfersEnabled {
		return ErrTransfersDisabled
	}
	defer m.setState(StateNone, "")
	ext := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c, err := m.ledger.GetOpenCampaign(ext)
		switch {
		case errors.Is(err, ledger.ErrNoOpenCampaign):
			m.setState(StateCreating, "")
			c, err = m.create(ext)
			if err != nil {
				m.log.Warn("campaign creation failed, retrying", zap.Duration("after", m.cfg.CreateRetryDelay), zap.Error(err))
				if !m.sleep(ctx, m.cfg.CreateRetryDelay) {
					return ctx.Err()
				}
				continue
			}
		case err != nil:
			m.log.Warn("open campaign lookup failed", zap.Error(err))
			if !m.sleep(ctx, m.cfg.CreateRetryDelay) {
				return ctx.Err()
			}
			continue
		default:
			m.log.Info("resuming open campaign", zap.String("campaign_id", c.ID))
		}

		m.setState(StateOpen, c.ID)
		if err := m.ingester.Run(ctx, c.ID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Error("ingestion stopped with error", zap.String("campaign_id", c.ID), zap.Error(err))
		}

		final, err := m.ledger.GetCampaign(ext, c.ID)
		if err != nil || final.IsOpen() {
			if !m.sleep(ctx, m.cfg.CreateRetryDelay) {
				return ctx.Err()
			}
			continue
		}

		if final.Status == models.CampaignStatusRewarded {
			m.setState(StateRewarded, final.ID)
		} else {
			m.setState(StateExpired, final.ID)
		}
		m.log.Info("campaign closed",
			zap.String("campaign_id", final.ID),
			zap.String("status", final.Status),
			zap.Duration("next_in", m.cfg.CampaignGap),
		)
		if !m.sleep(ctx, m.cfg.CampaignGap) {
			return ctx.Err()
		}
	}
}

func (m *Machine) create(ctx context.Context) (*models.Campaign, error) {
	q, err := m.questions.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate question: %w", err)
	}

	amount := m.rewardFor(q.Amount)
	postID, err := m.poster.Post(ctx, FormatPost(q, amount, m.cfg.Currency))
	if err != nil {
		return nil, fmt.Errorf("post question: %w", err)
	}

	c := &models.Campaign{
		ID:              postID,
		Context:         q.Context,
		Prompt:          q.Prompt,
		ReferenceAnswer: q.ReferenceAnswer,
		RewardAmount:    amount,
		Currency:        m.cfg.Currency,
	}
	if err := m.ledger.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("store campaign %s: %w", postID, err)
	}

	metrics.Campaigns.WithLabelValues(models.CampaignStatusOpen).Inc()
	m.log.Info("campaign opened",
		zap.String("campaign_id", c.ID),
		zap.Int64("reward", amount),
		zap.String("currency", c.Currency),
	)
	if m.pub != nil {
		if err := m.pub.Publish(ctx, events.StreamSettlement, events.New(events.EventCampaignOpened, c.ID, map[string]any{
			"reward_amount": amount,
			"currency":      c.Currency,
		})); err != nil {
			m.log.Warn("publish campaign_opened failed", zap.Error(err))
		}
	}
	return c, nil
}

// rewardFor keeps a generated amount only when it fits the currency band.
func (m *Machine) rewardFor(proposed int64) int64 {
	band, ok := m.bands.Lookup(m.cfg.Currency)
	if proposed > 0 && ok && band.Contains(proposed) {
		return proposed
	}
	return m.cfg.DefaultReward
}

func FormatPost(q models.Question, amount int64, currency string) string {
	return fmt.Sprintf("%s\n\n🔍 %s\n\n💰 Reward: %d %s for the best answer! 🎉", q.Context, q.Prompt, amount, currency)
}
