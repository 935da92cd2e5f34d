// Package policy maps a verdict and ledger state to a settlement decision.
// Everything here is pure.
package policy

import (
	"fmt"

	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/models"
)

// Reasons attached to non-PAY decisions
const (
	ReasonLowScore        = "low_score"
	ReasonAlreadyClaimed  = "already_claimed"
	ReasonNoTarget        = "no_target"
	ReasonOutOfBand       = "amount_out_of_band"
	ReasonUnknownCurrency = "unknown_currency"
	ReasonClassifierError = "classifier_failed"
)

type Policy struct {
	Flow     string
	MinScore int
	Bands    Bands
}

func FromConfig(cfg *config.Config) Policy {
	return Policy{
		Flow:     cfg.RewardFlow,
		MinScore: cfg.MinAwardScore,
		Bands:    BandsFromConfig(cfg),
	}
}

// State is the ledger view the policy needs for one author.
type State struct {
	AuthorID      string
	AuthorClaimed bool
}

// Decide returns ok=false when the campaign is not OPEN; the caller must skip.
func (p Policy) Decide(v models.Verdict, c models.Campaign, st State) (models.Decision, bool) {
	if !c.IsOpen() {
		return models.Decision{}, false
	}

	if v.Failed {
		return replyOnly(st.AuthorID, v.ReplyText, ReasonClassifierError), true
	}
	if v.Score < p.MinScore {
		return replyOnly(st.AuthorID, Annotate(v.ReplyText, v.Score), ReasonLowScore), true
	}
	// Per-author dedup applies to the address flow only; the invoice flow is
	// bounded by the single reward per campaign.
	if p.Flow == config.FlowAddress && st.AuthorClaimed {
		return replyOnly(st.AuthorID, Annotate(v.ReplyText, v.Score), ReasonAlreadyClaimed), true
	}

	target := p.target(v)
	amount, currency := p.amount(v, c)

	if target == nil {
		return models.Decision{
			Kind:     models.DecisionAwaitTarget,
			AuthorID: st.AuthorID,
			Amount:   amount,
			Currency: currency,
			Reply:    Annotate(v.ReplyText, v.Score),
			Reason:   ReasonNoTarget,
		}, true
	}

	if reason, ok := p.inBand(amount, currency); !ok {
		return replyOnly(st.AuthorID, Annotate(v.ReplyText, v.Score), reason), true
	}

	return models.Decision{
		Kind:     models.DecisionPay,
		Target:   target,
		Amount:   amount,
		Currency: currency,
		AuthorID: st.AuthorID,
		Reply:    v.ReplyText,
	}, true
}

// DecidePending settles a follow-up response from an author who already
// qualified but owed a target. ok=false when the pending record does not
// belong to this still-open campaign.
func (p Policy) DecidePending(pending models.PendingTarget, c models.Campaign, d models.TargetDetection) (models.Decision, bool) {
	if !c.IsOpen() || pending.CampaignID != c.ID {
		return models.Decision{}, false
	}

	if !d.Present {
		return replyOnly(pending.AuthorID, d.ReplyText, ReasonNoTarget), true
	}

	currency := NormalizeCurrency(pending.Currency)
	if currency == "" {
		currency = CurrencyCKB
	}
	if reason, ok := p.inBand(pending.Amount, currency); !ok {
		return replyOnly(pending.AuthorID, d.ReplyText, reason), true
	}

	return models.Decision{
		Kind:     models.DecisionPay,
		Target:   &models.PaymentTarget{Kind: p.targetKind(), Value: d.Target},
		Amount:   pending.Amount,
		Currency: currency,
		AuthorID: pending.AuthorID,
		Reply:    d.ReplyText,
	}, true
}

func (p Policy) inBand(amount int64, currency string) (string, bool) {
	band, known := p.Bands.Lookup(currency)
	if !known {
		return ReasonUnknownCurrency, false
	}
	if !band.Contains(amount) {
		return ReasonOutOfBand, false
	}
	return "", true
}

func (p Policy) target(v models.Verdict) *models.PaymentTarget {
	value := v.Target
	if p.Flow == config.FlowAddress && v.ToAddress != "" {
		value = v.ToAddress
	}
	if value == "" {
		return nil
	}
	return &models.PaymentTarget{Kind: p.targetKind(), Value: value}
}

func (p Policy) targetKind() string {
	if p.Flow == config.FlowAddress {
		return models.TargetKindAddress
	}
	return models.TargetKindInvoice
}

// amount resolves what would be paid. The invoice flow always pays the
// campaign reward; the address flow honours the verdict's proposal when given.
func (p Policy) amount(v models.Verdict, c models.Campaign) (int64, string) {
	amount, currency := c.RewardAmount, NormalizeCurrency(c.Currency)
	if p.Flow == config.FlowAddress {
		if v.Amount > 0 {
			amount = v.Amount
		}
		if cur := NormalizeCurrency(v.CurrencyType); cur != "" {
			currency = cur
		}
	}
	if currency == "" {
		currency = CurrencyCKB
	}
	return amount, currency
}

func replyOnly(authorID, reply, reason string) models.Decision {
	return models.Decision{
		Kind:     models.DecisionReplyOnly,
		AuthorID: authorID,
		Reply:    reply,
		Reason:   reason,
	}
}

// Annotate appends the score line shown to users on non-paying replies.
func Annotate(reply string, score int) string {
	return fmt.Sprintf("%s\n\nyour score is %d", reply, score)
}
