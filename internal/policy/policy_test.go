package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/models"
)

var testBands = Bands{
	CurrencyCKB:  {Min: 61, Max: 690},
	CurrencySeal: {Min: 1, Max: 10},
}

func addressPolicy() Policy {
	return Policy{Flow: config.FlowAddress, MinScore: 85, Bands: testBands}
}

func invoicePolicy() Policy {
	return Policy{Flow: config.FlowInvoice, MinScore: 85, Bands: testBands}
}

func openCampaign() models.Campaign {
	return models.Campaign{ID: "t1", Status: models.CampaignStatusOpen, RewardAmount: 100, Currency: "CKB"}
}

func TestDecideExampleScenario(t *testing.T) {
	p := addressPolicy()
	v := models.Verdict{Score: 92, ToAddress: "ckb1qxyz", Amount: 150, CurrencyType: "CKB", ReplyText: "Great"}

	d, ok := p.Decide(v, openCampaign(), State{AuthorID: "alice"})
	require.True(t, ok)
	assert.Equal(t, models.DecisionPay, d.Kind)
	require.NotNil(t, d.Target)
	assert.Equal(t, models.PaymentTarget{Kind: models.TargetKindAddress, Value: "ckb1qxyz"}, *d.Target)
	assert.Equal(t, int64(150), d.Amount)
	assert.Equal(t, "CKB", d.Currency)

	// same author after the claim is recorded
	d, ok = p.Decide(v, openCampaign(), State{AuthorID: "alice", AuthorClaimed: true})
	require.True(t, ok)
	assert.Equal(t, models.DecisionReplyOnly, d.Kind)
	assert.Equal(t, ReasonAlreadyClaimed, d.Reason)
	assert.Nil(t, d.Target)
}

func TestDecideNeverPaysClaimedAuthor(t *testing.T) {
	p := addressPolicy()
	verdicts := []models.Verdict{
		{Score: 85, ToAddress: "ckb1a", Amount: 61, CurrencyType: "CKB"},
		{Score: 100, ToAddress: "ckb1b", Amount: 690, CurrencyType: "CKB"},
		{Score: 99, Target: "ckb1c"},
		{Score: 90, ToAddress: "ckb1d", Amount: 5, CurrencyType: "Seal"},
	}
	for _, v := range verdicts {
		d, ok := p.Decide(v, openCampaign(), State{AuthorID: "a", AuthorClaimed: true})
		require.True(t, ok)
		assert.NotEqual(t, models.DecisionPay, d.Kind, "verdict %+v", v)
	}
}

func TestDecideScoreThreshold(t *testing.T) {
	for _, p := range []Policy{addressPolicy(), invoicePolicy()} {
		for score := 0; score < 85; score += 7 {
			v := models.Verdict{Score: score, Target: "fibt1", ToAddress: "ckb1q", Amount: 100, CurrencyType: "CKB", ReplyText: "Thanks"}
			d, ok := p.Decide(v, openCampaign(), State{AuthorID: "a"})
			require.True(t, ok)
			assert.Equal(t, models.DecisionReplyOnly, d.Kind, "flow %s score %d", p.Flow, score)
			assert.Equal(t, ReasonLowScore, d.Reason)
			assert.Contains(t, d.Reply, "your score is")
		}
	}
}

func TestDecideAmountBanding(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
		want     string
		reason   string
	}{
		{"ckb below", 60, "CKB", models.DecisionReplyOnly, ReasonOutOfBand},
		{"ckb min", 61, "CKB", models.DecisionPay, ""},
		{"ckb max", 690, "CKB", models.DecisionPay, ""},
		{"ckb above", 691, "CKB", models.DecisionReplyOnly, ReasonOutOfBand},
		{"seal above", 11, "Seal", models.DecisionReplyOnly, ReasonOutOfBand},
		{"seal in", 10, "seal", models.DecisionPay, ""},
		{"unknown currency", 100, "DOGE", models.DecisionReplyOnly, ReasonUnknownCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := models.Verdict{Score: 95, ToAddress: "ckb1q", Amount: tt.amount, CurrencyType: tt.currency, ReplyText: "ok"}
			d, ok := addressPolicy().Decide(v, openCampaign(), State{AuthorID: "a"})
			require.True(t, ok)
			assert.Equal(t, tt.want, d.Kind)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecideInvoiceFlow(t *testing.T) {
	p := invoicePolicy()
	c := openCampaign()

	d, ok := p.Decide(models.Verdict{Score: 90, Target: "fibt4000", ReplyText: "Paid"}, c, State{AuthorID: "a", AuthorClaimed: true})
	require.True(t, ok)
	assert.Equal(t, models.DecisionPay, d.Kind, "invoice flow does not dedup by author")
	assert.Equal(t, models.TargetKindInvoice, d.Target.Kind)
	assert.Equal(t, int64(100), d.Amount)
	assert.Equal(t, "CKB", d.Currency)
	assert.Equal(t, "Paid", d.Reply)

	c.RewardAmount = 1000
	d, _ = p.Decide(models.Verdict{Score: 90, Target: "fibt4000"}, c, State{AuthorID: "a"})
	assert.Equal(t, models.DecisionReplyOnly, d.Kind)
	assert.Equal(t, ReasonOutOfBand, d.Reason)
}

func TestDecideAwaitTarget(t *testing.T) {
	d, ok := invoicePolicy().Decide(models.Verdict{Score: 88, ReplyText: "Send an invoice"}, openCampaign(), State{AuthorID: "bob"})
	require.True(t, ok)
	assert.Equal(t, models.DecisionAwaitTarget, d.Kind)
	assert.Equal(t, "bob", d.AuthorID)
	assert.Equal(t, int64(100), d.Amount)
	assert.Nil(t, d.Target)
	assert.Equal(t, "Send an invoice\n\nyour score is 88", d.Reply)
}

func TestDecideSkipsClosedCampaign(t *testing.T) {
	for _, status := range []string{models.CampaignStatusRewarded, models.CampaignStatusExpired} {
		c := openCampaign()
		c.Status = status
		_, ok := addressPolicy().Decide(models.Verdict{Score: 100, ToAddress: "ckb1q", Amount: 100}, c, State{})
		assert.False(t, ok, status)
	}
}

func TestDecideFailedVerdict(t *testing.T) {
	d, ok := invoicePolicy().Decide(models.FailedVerdict(models.ReplyParseFailure), openCampaign(), State{AuthorID: "a"})
	require.True(t, ok)
	assert.Equal(t, models.DecisionReplyOnly, d.Kind)
	assert.Equal(t, models.ReplyParseFailure, d.Reply)
}

func TestDecidePending(t *testing.T) {
	p := invoicePolicy()
	c := openCampaign()
	pending := models.PendingTarget{AuthorID: "bob", CampaignID: "t1", Amount: 100, Currency: "CKB"}

	d, ok := p.DecidePending(pending, c, models.TargetDetection{Present: true, Target: "fibt4000", ReplyText: "Got it"})
	require.True(t, ok)
	assert.Equal(t, models.DecisionPay, d.Kind)
	assert.Equal(t, "fibt4000", d.Target.Value)
	assert.Equal(t, int64(100), d.Amount)

	d, ok = p.DecidePending(pending, c, models.TargetDetection{ReplyText: "Please send one"})
	require.True(t, ok)
	assert.Equal(t, models.DecisionReplyOnly, d.Kind)
	assert.Equal(t, "Please send one", d.Reply)

	other := pending
	other.CampaignID = "t0"
	_, ok = p.DecidePending(other, c, models.TargetDetection{Present: true, Target: "x"})
	assert.False(t, ok)

	big := pending
	big.Amount = 5000
	d, _ = p.DecidePending(big, c, models.TargetDetection{Present: true, Target: "x"})
	assert.Equal(t, models.DecisionReplyOnly, d.Kind)
}

func TestBandsFromConfig(t *testing.T) {
	cfg := &config.Config{CKBMin: 61, CKBMax: 690, SealMin: 1, SealMax: 10, TONMin: 1, TONMax: 5}
	b := BandsFromConfig(cfg)
	_, ok := b.Lookup("ton")
	assert.False(t, ok)

	cfg.TONWalletSeed = "word word"
	b = BandsFromConfig(cfg)
	band, ok := b.Lookup(" ton ")
	require.True(t, ok)
	assert.True(t, band.Contains(5))
	assert.False(t, band.Contains(6))
}
