package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seal-agent/backend/internal/events"
)

func TestForward(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := events.New(events.EventRewardPaid, "c1", map[string]any{
		"amount": 100, "currency": "CKB", "author_id": "alice", "tx_ref": "0xabc",
	})
	require.NoError(t, forward(context.Background(), srv.Client(), srv.URL, ev))
	assert.Equal(t, "Paid 100 CKB to alice on campaign c1 (tx 0xabc)", got["text"])
}

func TestForwardNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := forward(context.Background(), srv.Client(), srv.URL, events.New(events.EventCampaignOpened, "c1", nil))
	assert.EqualError(t, err, "webhook returned 502")
}

func TestSummary(t *testing.T) {
	tests := []struct {
		event events.Event
		want  string
	}{
		{events.New(events.EventCampaignExpired, "c9", nil), "campaign_expired: campaign c9"},
		{events.New(events.EventThanksPosted, "", map[string]any{"sender": "ckt1q", "value": "10"}), "Thanked ckt1q for 10"},
		{events.New(events.EventTransferFailed, "c2", map[string]any{"author_id": "bob", "error": "boom"}), "Transfer to bob failed on campaign c2: boom"},
		{events.New("custom", "", nil), "custom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, summary(tt.event))
	}
}
