package models

import "time"

// Entitlement is the user-facing projection of a subscription.
type Entitlement struct {
	UserID               string     `json:"user_id"`
	Status               Status     `json:"status"`
	IsActive             bool       `json:"is_active"`
	InGracePeriod        bool       `json:"in_grace_period"`
	IsTrial              bool       `json:"is_trial"`
	DaysRemaining        int        `json:"days_remaining"`
	GracePeriodRemaining int        `json:"grace_period_remaining"`
	NextPaymentDue       time.Time  `json:"next_payment_due"`
	EndDate              time.Time  `json:"end_date"`
	GracePeriodEnd       *time.Time `json:"grace_period_end,omitempty"`
	AutoRenewal          bool       `json:"auto_renewal"`
}
