package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventPaymentApplied EventKind = "payment_applied"
	EventGraceStarted   EventKind = "grace_started"
	EventCancelled      EventKind = "cancelled"
	EventReactivated    EventKind = "reactivated"
	EventSweepCompleted EventKind = "sweep_completed"
)

// Event is an operator-facing notification about a subscription change.
type Event struct {
	Kind      EventKind
	UserID    string
	Status    Status
	Network   Network
	Amount    decimal.Decimal
	TxHash    string
	EndDate   time.Time
	Sweep     *SweepResult
	CreatedAt time.Time
}

type EventNotifier interface {
	Notify(ctx context.Context, event *Event)
}
