package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// VerificationRequest is what a caller asks the dispatcher to check.
type VerificationRequest struct {
	Network   Network
	Address   string
	MinAmount decimal.Decimal
	// TxID is optional for the dispatcher. When set it must be non-blank.
	TxID *string
}

// VerificationResult is the normalized, transient outcome of a verification.
type VerificationResult struct {
	Success         bool               `json:"success"`
	TransactionHash string             `json:"transaction_hash,omitempty"`
	Amount          decimal.Decimal    `json:"amount"`
	Confirmations   int64              `json:"confirmations"`
	Timestamp       time.Time          `json:"timestamp"`
	Network         Network            `json:"network"`
	Method          VerificationMethod `json:"method"`
	From            string             `json:"from,omitempty"`
	To              string             `json:"to,omitempty"`
	Raw             json.RawMessage    `json:"-"`
	Error           *Error             `json:"error,omitempty"`
}

// Failed builds an unsuccessful result for the given network.
func Failed(network Network, method VerificationMethod, err *Error) *VerificationResult {
	return &VerificationResult{Network: network, Method: method, Error: err}
}

// NetworkVerifier checks transfers on one network. It never retries and never panics
// across its boundary: every failure is reported in the result.
type NetworkVerifier interface {
	Network() Network
	Verify(ctx context.Context, address string, minAmount decimal.Decimal, txID *string) *VerificationResult
}

// PaymentVerifier is the dispatcher contract consumed by the manager.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, req VerificationRequest) *VerificationResult
}
