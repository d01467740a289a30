package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// VerifyInput is a user-initiated payment proof.
type VerifyInput struct {
	UserID         string
	Network        Network
	ExpectedAmount decimal.Decimal
	TransactionID  string
}

// ApplyResult is returned by every payment-crediting operation.
type ApplyResult struct {
	Subscription   *Subscription
	Verification   *VerificationResult
	AlreadyApplied bool
}

// SweepResult aggregates one pass of the periodic sweep.
type SweepResult struct {
	Processed    int           `json:"processed"`
	Expired      int           `json:"expired"`
	GraceStarted int           `json:"grace_started"`
	Cancelled    int           `json:"cancelled"`
	Failed       int           `json:"failed"`
	Skipped      bool          `json:"skipped"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// SubscriptionManager is the only component allowed to mutate subscriptions.
type SubscriptionManager interface {
	// Start runs the periodic sweep until ctx is cancelled.
	Start(ctx context.Context)

	// VerifyAndApply verifies a transaction against the configured deposit address and credits it.
	VerifyAndApply(ctx context.Context, in VerifyInput) (*ApplyResult, error)
	// CreateOrExtendSubscription credits an already verified payment.
	CreateOrExtendSubscription(ctx context.Context, userID string, payment *Payment) (*ApplyResult, error)

	GetUserSubscription(ctx context.Context, userID string) (*Subscription, error)
	// CheckSubscriptionStatus advances due time-driven transitions and returns the projection.
	CheckSubscriptionStatus(ctx context.Context, userID string) (*Entitlement, error)
	ProcessMonthlyChecks(ctx context.Context) (*SweepResult, error)

	CancelSubscription(ctx context.Context, userID string) (*Subscription, error)
	ReactivateSubscription(ctx context.Context, userID string, payment *Payment) (*ApplyResult, error)
	VerifyAndReactivate(ctx context.Context, in VerifyInput) (*ApplyResult, error)

	GetSubscriptionStats(ctx context.Context) (*SubscriptionStats, error)
}
