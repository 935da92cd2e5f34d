// Package wallet holds the value-moving backends. Callers only see transport
// success or failure; business rules live in policy.
package wallet

import "errors"

var (
	ErrTransferFailed  = errors.New("wallet transfer failed")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrNotConfigured   = errors.New("wallet not configured")
)
