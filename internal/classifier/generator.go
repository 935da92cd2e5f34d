package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/seal-agent/backend/internal/llm"
	"github.com/seal-agent/backend/internal/models"
)

// Generator asks the oracle for the next campaign question.
type Generator struct {
	oracle   llm.Oracle
	validate *validator.Validate
}

func NewGenerator(oracle llm.Oracle) *Generator {
	return &Generator{oracle: oracle, validate: validator.New()}
}

type generatedQuestion struct {
	Context         string   `json:"question_context" validate:"required"`
	Prompt          string   `json:"question_prompt" validate:"required"`
	ReferenceAnswer string   `json:"reference_answer" validate:"required"`
	Amount          *float64 `json:"amount" validate:"omitempty,gte=0"`
}

// Generate returns a question; Amount is 0 when the oracle proposed none.
func (g *Generator) Generate(ctx context.Context) (models.Question, error) {
	raw, err := g.oracle.Complete(ctx, generateSystem, generatePrompt)
	if err != nil {
		return models.Question{}, fmt.Errorf("generate question: %w", err)
	}

	obj, err := CleanOutput(raw)
	if err != nil {
		return models.Question{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var q generatedQuestion
	if err := json.Unmarshal([]byte(obj), &q); err != nil {
		return models.Question{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := g.validate.Struct(q); err != nil {
		return models.Question{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := models.Question{
		Context:         q.Context,
		Prompt:          q.Prompt,
		ReferenceAnswer: q.ReferenceAnswer,
	}
	if q.Amount != nil {
		out.Amount = int64(math.Round(*q.Amount))
	}
	return out, nil
}
