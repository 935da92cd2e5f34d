package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "judge", req.Messages[0].Content)
		assert.Equal(t, "answer", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"score\": 70}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/", "sk-test", "gpt-test", zap.NewNop())
	out, err := c.Complete(context.Background(), "judge", "answer")
	require.NoError(t, err)
	assert.Equal(t, `{"score": 70}`, out)
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `upstream down`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"api error", http.StatusOK, `{"choices":[],"error":{"message":"quota"}}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient(srv.URL, "sk-test", "gpt-test", zap.NewNop())
			_, err := c.Complete(context.Background(), "s", "u")
			assert.Error(t, err)
		})
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	c := NewOpenAIClient("http://127.0.0.1:1", "", "m", zap.NewNop())
	_, err := c.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := &config.Config{OracleProvider: config.OracleOpenAI, OpenAIBaseURL: "http://x", OpenAIAPIKey: "k"}
	o, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, o)

	cfg = &config.Config{OracleProvider: config.OracleGemini}
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrAPIKeyMissing)

	cfg = &config.Config{OracleProvider: "mystery"}
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
