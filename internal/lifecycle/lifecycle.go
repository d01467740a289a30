// Package lifecycle holds the subscription state machine. Every transition is a pure
// function of the current record, the event and the wall clock.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/core-coin/pactum/internal/models"
)

const day = 24 * time.Hour

type EventKind string

const (
	PaymentConfirmed    EventKind = "PaymentConfirmed"
	PeriodElapsed       EventKind = "PeriodElapsed"
	CancelRequested     EventKind = "CancelRequested"
	ReactivateRequested EventKind = "ReactivateRequested"
)

// Event drives one transition. Payment is required for PaymentConfirmed and ReactivateRequested.
type Event struct {
	Kind    EventKind
	Payment *models.Payment
}

// Policy carries the configurable period lengths.
type Policy struct {
	Period      time.Duration
	GracePeriod time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Period: 30 * day, GracePeriod: 7 * day}
}

// PolicyFromDays builds a policy from whole day counts.
func PolicyFromDays(periodDays, graceDays int) Policy {
	return Policy{
		Period:      time.Duration(periodDays) * day,
		GracePeriod: time.Duration(graceDays) * day,
	}
}

// Transition describes what Apply did. Steps lists every status the record moved
// through, so an active record that lapses past its grace window in one call
// reports expired, grace and cancelled.
type Transition struct {
	From    models.Status
	To      models.Status
	Steps   []models.Status
	Changed bool
}

// Entered reports whether the transition passed through status s.
func (t Transition) Entered(s models.Status) bool {
	for _, step := range t.Steps {
		if step == s {
			return true
		}
	}
	return false
}

// Apply computes the next state of sub. sub is never modified; a nil sub is only
// accepted for the first PaymentConfirmed of a user.
func Apply(sub *models.Subscription, ev Event, now time.Time, p Policy) (*models.Subscription, Transition, error) {
	if sub == nil && ev.Kind != PaymentConfirmed {
		return nil, Transition{}, models.NewError(models.CodeSubscriptionNotFound, "", "subscription not found", nil)
	}

	var tr Transition
	if sub != nil {
		tr.From = sub.Status
	}

	var (
		next *models.Subscription
		err  error
	)
	switch ev.Kind {
	case PaymentConfirmed:
		next, err = confirmPayment(sub, ev.Payment, now, p, &tr)
	case PeriodElapsed:
		next = elapse(sub.Clone(), now, p, &tr)
	case CancelRequested:
		next = cancel(sub.Clone(), now, &tr)
	case ReactivateRequested:
		if sub.Status != models.StatusCancelled {
			return nil, Transition{}, models.NewError(models.CodeInvalidTransition, "",
				fmt.Sprintf("cannot reactivate a subscription in status %s", sub.Status), nil)
		}
		next, err = confirmPayment(sub, ev.Payment, now, p, &tr)
	default:
		return nil, Transition{}, fmt.Errorf("unknown lifecycle event %q", ev.Kind)
	}
	if err != nil {
		return nil, Transition{}, err
	}

	tr.To = next.Status
	return next, tr, nil
}

func confirmPayment(sub *models.Subscription, payment *models.Payment, now time.Time, p Policy, tr *Transition) (*models.Subscription, error) {
	if payment == nil {
		return nil, models.ValidationError("payment is required")
	}
	if payment.TransactionHash == "" {
		return nil, models.ValidationError("payment transaction hash is required")
	}

	var next *models.Subscription
	if sub == nil {
		next = &models.Subscription{
			UserID:      payment.UserID,
			StartDate:   now,
			EndDate:     now,
			AutoRenewal: true,
		}
	} else {
		if sub.HasPayment(payment.TransactionHash) {
			return nil, models.NewError(models.CodeAlreadyApplied, "", "payment already applied", nil)
		}
		next = sub.Clone()
	}

	// endDate never moves backwards: extend from whichever is later.
	base := next.EndDate
	if base.Before(now) {
		base = now
		next.StartDate = now
	}
	if next.Status == models.StatusCancelled {
		next.StartDate = now
		next.CancellationDate = nil
		next.AutoRenewal = true
	}
	next.EndDate = base.Add(p.Period)
	next.NextPaymentDue = next.EndDate.Add(day)
	next.GracePeriodEnd = nil

	paid := *payment
	paid.SubscriptionID = next.ID
	paid.UserID = next.UserID
	if paid.Status == "" {
		paid.Status = models.PaymentConfirmed
	}
	if paid.PaymentDate.IsZero() {
		paid.PaymentDate = now
	}
	next.PaymentHistory = append(next.PaymentHistory, paid)

	next.Status = models.StatusActive
	tr.Steps = append(tr.Steps, models.StatusActive)
	tr.Changed = true
	return next, nil
}

func elapse(next *models.Subscription, now time.Time, p Policy, tr *Transition) *models.Subscription {
	if next.Status == models.StatusActive || next.Status == models.StatusTrial {
		if !now.After(next.EndDate) {
			return next
		}
		next.Status = models.StatusExpired
		tr.Steps = append(tr.Steps, models.StatusExpired)
		tr.Changed = true
	}

	if next.Status == models.StatusExpired {
		if next.GracePeriodEnd == nil {
			end := next.EndDate.Add(p.GracePeriod)
			next.GracePeriodEnd = &end
		}
		next.Status = models.StatusGrace
		tr.Steps = append(tr.Steps, models.StatusGrace)
		tr.Changed = true
	}

	if next.Status == models.StatusGrace {
		if next.GracePeriodEnd == nil {
			end := next.EndDate.Add(p.GracePeriod)
			next.GracePeriodEnd = &end
			tr.Changed = true
		}
		if now.After(*next.GracePeriodEnd) {
			markCancelled(next, now)
			tr.Steps = append(tr.Steps, models.StatusCancelled)
			tr.Changed = true
		}
	}
	return next
}

func cancel(next *models.Subscription, now time.Time, tr *Transition) *models.Subscription {
	if next.Status == models.StatusCancelled {
		return next
	}
	markCancelled(next, now)
	tr.Steps = append(tr.Steps, models.StatusCancelled)
	tr.Changed = true
	return next
}

func markCancelled(next *models.Subscription, now time.Time) {
	cancelledAt := now
	next.Status = models.StatusCancelled
	next.CancellationDate = &cancelledAt
	next.AutoRenewal = false
	next.GracePeriodEnd = nil
}
