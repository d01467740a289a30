// Package entitlement projects a subscription into the flags the product surfaces read.
package entitlement

import (
	"math"
	"time"

	"github.com/core-coin/pactum/internal/models"
)

// Project derives the entitlement for sub at now. It never mutates sub.
func Project(sub *models.Subscription, now time.Time) *models.Entitlement {
	e := &models.Entitlement{
		UserID:         sub.UserID,
		Status:         sub.Status,
		IsActive:       sub.Status == models.StatusActive,
		InGracePeriod:  sub.Status == models.StatusGrace,
		IsTrial:        sub.Status == models.StatusTrial,
		NextPaymentDue: sub.NextPaymentDue,
		EndDate:        sub.EndDate,
		AutoRenewal:    sub.AutoRenewal,
	}
	if sub.Status != models.StatusCancelled {
		e.DaysRemaining = DaysUntil(sub.EndDate, now)
	}
	if sub.Status == models.StatusGrace && sub.GracePeriodEnd != nil {
		end := *sub.GracePeriodEnd
		e.GracePeriodEnd = &end
		e.GracePeriodRemaining = DaysUntil(end, now)
	}
	return e
}

// DaysUntil returns the whole days left until t, rounded up and never negative.
func DaysUntil(t, now time.Time) int {
	left := t.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
