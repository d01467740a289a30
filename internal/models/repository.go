package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicatePayment   = errors.New("payment transaction hash already recorded")
	ErrSubscriptionExists = errors.New("subscription already exists for user")
	ErrVersionConflict    = errors.New("subscription was modified concurrently")
)

// SubscriptionStats is the aggregate view returned to operators.
type SubscriptionStats struct {
	Total             int64                       `json:"total"`
	ByStatus          map[Status]int64            `json:"by_status"`
	ConfirmedPayments int64                       `json:"confirmed_payments"`
	TotalRevenue      decimal.Decimal             `json:"total_revenue"`
	RevenueByNetwork  map[Network]decimal.Decimal `json:"revenue_by_network"`
}

type Repository interface {
	// GetSubscription returns the subscription with its payment history, or ErrNotFound.
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	// FindPaymentByHash looks up a payment by its network-qualified key, or ErrNotFound.
	FindPaymentByHash(ctx context.Context, transactionHash string) (*Payment, error)

	// CreateSubscription inserts a new subscription together with its payment history.
	CreateSubscription(ctx context.Context, sub *Subscription) error
	// UpdateSubscription writes sub if its stored version still equals expectedVersion
	// and appends newPayment, if any, in the same transaction.
	UpdateSubscription(ctx context.Context, sub *Subscription, expectedVersion int64, newPayment *Payment) error

	// ListSubscriptionsByStatus pages through subscriptions ordered by id.
	ListSubscriptionsByStatus(ctx context.Context, statuses []Status, afterID int64, limit int) ([]*Subscription, error)
	GetSubscriptionStats(ctx context.Context) (*SubscriptionStats, error)

	AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}
