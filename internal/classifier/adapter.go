// Package classifier turns free-text oracle output into typed verdicts. It
// never returns raw oracle text to callers.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/config"
	"github.com/seal-agent/backend/internal/llm"
	"github.com/seal-agent/backend/internal/metrics"
	"github.com/seal-agent/backend/internal/models"
)

// ErrMalformed wraps every parse or validation failure of oracle output.
var ErrMalformed = errors.New("malformed oracle output")

// Rubric is what the oracle scores a response against.
type Rubric struct {
	Context         string
	Prompt          string
	ReferenceAnswer string
}

func RubricFor(c *models.Campaign) Rubric {
	return Rubric{Context: c.Context, Prompt: c.Prompt, ReferenceAnswer: c.ReferenceAnswer}
}

type Adapter struct {
	oracle   llm.Oracle
	flow     string
	validate *validator.Validate
	log      *zap.Logger
}

func NewAdapter(oracle llm.Oracle, flow string, log *zap.Logger) *Adapter {
	return &Adapter{
		oracle:   oracle,
		flow:     flow,
		validate: validator.New(),
		log:      log,
	}
}

type invoiceVerdict struct {
	Score        *float64 `json:"score" validate:"required,gte=0,lte=100"`
	Invoice      *string  `json:"invoice"`
	ReplyContent *string  `json:"reply_content" validate:"required"`
}

type addressVerdict struct {
	Score        *float64 `json:"score" validate:"required,gte=0,lte=100"`
	ToAddress    *string  `json:"to_address"`
	Amount       *float64 `json:"amount" validate:"omitempty,gte=0"`
	CurrencyType *string  `json:"currency_type"`
	ReplyContent *string  `json:"reply_content" validate:"required"`
}

type targetDetection struct {
	IsInvoice    *bool   `json:"is_invoice" validate:"required"`
	Invoice      *string `json:"invoice"`
	ReplyContent *string `json:"reply_content" validate:"required"`
}

// Classify runs one oracle call for the response. Any failure yields
// models.FailedVerdict; it never returns an error.
func (a *Adapter) Classify(ctx context.Context, r Rubric, responseText string) models.Verdict {
	var (
		prompt   string
		required []string
	)
	if a.flow == config.FlowAddress {
		prompt = addressJudgePrompt(r, responseText)
		required = []string{"score", "reply_content"}
	} else {
		prompt = invoiceJudgePrompt(r, responseText)
		required = []string{"score", "invoice", "reply_content"}
	}

	raw, err := a.oracle.Complete(ctx, judgeSystem, prompt)
	if err != nil {
		a.fail("classify", err)
		return models.FailedVerdict(models.ReplyUnexpectedFailure)
	}

	v, err := a.parseVerdict(raw, required)
	if err != nil {
		a.fail("classify", err, zap.String("raw", truncate(raw, 512)))
		return models.FailedVerdict(models.ReplyParseFailure)
	}
	return v
}

func (a *Adapter) parseVerdict(raw string, required []string) (models.Verdict, error) {
	obj, err := decodeObject(raw, required)
	if err != nil {
		return models.Verdict{}, err
	}

	if a.flow == config.FlowAddress {
		var av addressVerdict
		if err := a.decodeInto(obj, &av); err != nil {
			return models.Verdict{}, err
		}
		v := models.Verdict{
			Score:        int(math.Round(*av.Score)),
			ReplyText:    *av.ReplyContent,
			ToAddress:    deref(av.ToAddress),
			CurrencyType: strings.ToUpper(deref(av.CurrencyType)),
		}
		if av.Amount != nil {
			v.Amount = int64(math.Round(*av.Amount))
		}
		return v, nil
	}

	var iv invoiceVerdict
	if err := a.decodeInto(obj, &iv); err != nil {
		return models.Verdict{}, err
	}
	return models.Verdict{
		Score:     int(math.Round(*iv.Score)),
		Target:    deref(iv.Invoice),
		ReplyText: *iv.ReplyContent,
	}, nil
}

// DetectPaymentTarget asks the oracle whether a follow-up response carries a
// payment target. Failures read as "not present" with an apology reply.
func (a *Adapter) DetectPaymentTarget(ctx context.Context, responseText string) models.TargetDetection {
	raw, err := a.oracle.Complete(ctx, detectSystem, detectPrompt(responseText))
	if err != nil {
		a.fail("detect", err)
		return models.TargetDetection{ReplyText: models.ReplyDetectUnexpectedFailure}
	}

	obj, err := decodeObject(raw, []string{"is_invoice", "invoice", "reply_content"})
	if err == nil {
		var td targetDetection
		if err = a.decodeInto(obj, &td); err == nil {
			target := deref(td.Invoice)
			return models.TargetDetection{
				Present:   *td.IsInvoice && target != "",
				Target:    target,
				ReplyText: *td.ReplyContent,
			}
		}
	}
	a.fail("detect", err, zap.String("raw", truncate(raw, 512)))
	return models.TargetDetection{ReplyText: models.ReplyDetectParseFailure}
}

func (a *Adapter) decodeInto(obj string, v any) error {
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := a.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (a *Adapter) fail(call string, err error, fields ...zap.Field) {
	metrics.ClassifierFailures.WithLabelValues(call).Inc()
	a.log.Warn("oracle call degraded", append(fields, zap.String("call", call), zap.Error(err))...)
}

// decodeObject cleans raw output and checks that every required key is
// present, even when its value is null.
func decodeObject(raw string, required []string) (string, error) {
	obj, err := CleanOutput(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &keys); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, k := range required {
		if _, ok := keys[k]; !ok {
			return "", fmt.Errorf("%w: missing field %q", ErrMalformed, k)
		}
	}
	return obj, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
