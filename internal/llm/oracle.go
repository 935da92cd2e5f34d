// Package llm holds the classifier oracle backends. Output is free text with
// no schema guarantee; callers parse defensively.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
)

type Oracle interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New picks the backend named by ORACLE_PROVIDER.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Oracle, error) {
	switch cfg.OracleProvider {
	case config.OracleOpenAI:
		return NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, log), nil
	case config.OracleGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.OracleProvider)
	}
}
