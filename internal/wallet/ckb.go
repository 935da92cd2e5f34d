package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CKBClient talks to the CKB wallet backend: native CKB, xUDT tokens and
// payment-channel invoices.
type CKBClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewCKBClient(baseURL, authToken string, log *zap.Logger) *CKBClient {
	return &CKBClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type balanceResponse struct {
	Balance json.Number `json:"balance"`
}

type transferRequest struct {
	ToAddress   string `json:"toAddress"`
	AmountInCKB string `json:"amountInCKB"`
}

type invoiceTransferRequest struct {
	Invoice     string `json:"invoice"`
	AmountInCKB string `json:"amountInCKB"`
}

type transferResponse struct {
	TxHash string `json:"txHash"`
	Result string `json:"result"`
}

// Invoice is the backend's view of a payment-channel invoice.
type Invoice struct {
	Invoice  string          `json:"invoice"`
	Amount   json.Number     `json:"amount,omitempty"`
	Currency string          `json:"currency,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Balance returns the hot wallet CKB balance.
func (c *CKBClient) Balance(ctx context.Context) (int64, error) {
	return c.balance(ctx, "/balance")
}

// TokenBalance returns the balance of the xUDT token identified by its type args.
func (c *CKBClient) TokenBalance(ctx context.Context, xudtArgs string) (int64, error) {
	return c.balance(ctx, "/balance/"+url.PathEscape(xudtArgs))
}

func (c *CKBClient) balance(ctx context.Context, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}

	var out balanceResponse
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(out.Balance.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", out.Balance, err)
	}
	return n, nil
}

// Transfer sends amount CKB to an address and returns the tx hash.
func (c *CKBClient) Transfer(ctx context.Context, toAddress string, amount int64) (string, error) {
	return c.transfer(ctx, "/transfer", transferRequest{ToAddress: toAddress, AmountInCKB: strconv.FormatInt(amount, 10)})
}

// TransferToken sends amount units of an xUDT token to an address.
func (c *CKBClient) TransferToken(ctx context.Context, xudtArgs, toAddress string, amount int64) (string, error) {
	if xudtArgs == "" {
		return "", fmt.Errorf("token transfer: %w: empty xudt args", ErrNotConfigured)
	}
	return c.transfer(ctx, "/transfer/"+url.PathEscape(xudtArgs), transferRequest{ToAddress: toAddress, AmountInCKB: strconv.FormatInt(amount, 10)})
}

// TransferByInvoice pays a payment-channel invoice.
func (c *CKBClient) TransferByInvoice(ctx context.Context, invoice string, amount int64) (string, error) {
	return c.transfer(ctx, "/transfer/invoice", invoiceTransferRequest{Invoice: invoice, AmountInCKB: strconv.FormatInt(amount, 10)})
}

// InvoiceDetail looks an invoice up; ErrInvoiceNotFound when the backend
// does not know it.
func (c *CKBClient) InvoiceDetail(ctx context.Context, invoice string) (*Invoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/invoice/"+url.PathEscape(invoice), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet backend unavailable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrInvoiceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wallet backend returned %d: %s", resp.StatusCode, string(body))
	}
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil, ErrInvoiceNotFound
	}

	inv := &Invoice{Invoice: invoice, Raw: body}
	if err := json.Unmarshal(body, inv); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	if inv.Invoice == "" {
		inv.Invoice = invoice
	}
	return inv, nil
}

func (c *CKBClient) transfer(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out transferResponse
	if err := c.do(req, &out); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		return "", err
	}

	ref := out.TxHash
	if ref == "" {
		ref = out.Result
	}
	c.log.Info("wallet transfer submitted", zap.String("path", path), zap.String("tx_ref", ref))
	return ref, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wallet backend returned %d: %s", e.code, e.body)
}

func (c *CKBClient) do(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet backend unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode wallet response: %w", err)
	}
	return nil
}

// The backend expects the raw token, no scheme.
func (c *CKBClient) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}
}
