// Package transfer turns a PAY decision into wallet backend calls.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seal-agent/backend/internal/metrics"
	"github.com/seal-agent/backend/internal/models"
	"github.com/seal-agent/backend/internal/policy"
	"github.com/seal-agent/backend/internal/wallet"
)

var (
	ErrNoTarget            = errors.New("decision has no payment target")
	ErrUnsupportedCurrency = errors.New("no wallet route for currency")
	ErrNotPay              = errors.New("decision is not PAY")
)

// CKBBackend is the subset of wallet.CKBClient the executor uses.
type CKBBackend interface {
	Transfer(ctx context.Context, toAddress string, amount int64) (string, error)
	TransferToken(ctx context.Context, xudtArgs, toAddress string, amount int64) (string, error)
	TransferByInvoice(ctx context.Context, invoice string, amount int64) (string, error)
	InvoiceDetail(ctx context.Context, invoice string) (*wallet.Invoice, error)
}

type TONBackend interface {
	Transfer(ctx context.Context, to string, amount int64, comment string) (string, error)
}

// Receipt describes a transfer the backend accepted.
type Receipt struct {
	TxRef    string
	Route    string
	Target   models.PaymentTarget
	Amount   int64
	Currency string
}

type Executor struct {
	ckb      CKBBackend
	ton      TONBackend
	sealArgs string
	log      *zap.Logger
}

// NewExecutor wires the backends. ton may be nil when no TON wallet is configured.
func NewExecutor(ckb CKBBackend, ton TONBackend, sealXUDTArgs string, log *zap.Logger) *Executor {
	return &Executor{ckb: ckb, ton: ton, sealArgs: sealXUDTArgs, log: log}
}

// Pay performs exactly one transfer attempt. The amount is assumed to have
// passed the policy band check already; nothing here re-validates it.
func (e *Executor) Pay(ctx context.Context, d models.Decision) (Receipt, error) {
	if d.Kind != models.DecisionPay {
		return Receipt{}, ErrNotPay
	}
	if d.Target == nil || d.Target.Value == "" {
		return Receipt{}, ErrNoTarget
	}

	currency := policy.NormalizeCurrency(d.Currency)
	route, ref, err := e.dispatch(ctx, *d.Target, d.Amount, currency)

	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.Transfers.WithLabelValues(currency, result).Inc()

	if err != nil {
		e.log.Warn("transfer failed",
			zap.String("route", route),
			zap.String("target_kind", d.Target.Kind),
			zap.Int64("amount", d.Amount),
			zap.String("currency", currency),
			zap.Error(err),
		)
		return Receipt{}, err
	}

	return Receipt{
		TxRef:    ref,
		Route:    route,
		Target:   *d.Target,
		Amount:   d.Amount,
		Currency: currency,
	}, nil
}

func (e *Executor) dispatch(ctx context.Context, t models.PaymentTarget, amount int64, currency string) (string, string, error) {
	switch t.Kind {
	case models.TargetKindInvoice:
		if currency != policy.CurrencyCKB {
			return "invoice", "", fmt.Errorf("%w: invoice in %s", ErrUnsupportedCurrency, currency)
		}
		if _, err := e.ckb.InvoiceDetail(ctx, t.Value); err != nil {
			return "invoice", "", fmt.Errorf("invoice detail: %w", err)
		}
		ref, err := e.ckb.TransferByInvoice(ctx, t.Value, amount)
		return "invoice", ref, err

	case models.TargetKindAddress:
		switch currency {
		case policy.CurrencyCKB:
			ref, err := e.ckb.Transfer(ctx, t.Value, amount)
			return "ckb", ref, err
		case policy.CurrencySeal:
			ref, err := e.ckb.TransferToken(ctx, e.sealArgs, t.Value, amount)
			return "xudt", ref, err
		case policy.CurrencyTON:
			if e.ton == nil {
				return "ton", "", fmt.Errorf("%w: %s (wallet not configured)", ErrUnsupportedCurrency, currency)
			}
			ref, err := e.ton.Transfer(ctx, t.Value, amount, "reward")
			return "ton", ref, err
		default:
			return "", "", fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
		}

	default:
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrNoTarget, t.Kind)
	}
}
