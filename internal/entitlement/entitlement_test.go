package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/core-coin/pactum/internal/models"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		name string
		left time.Duration
		want int
	}{
		{"past", -time.Hour, 0},
		{"now", 0, 0},
		{"one second", time.Second, 1},
		{"exact day", 24 * time.Hour, 1},
		{"day and a bit", 25 * time.Hour, 2},
		{"thirty days", 30 * 24 * time.Hour, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(now.Add(tt.left), now))
		})
	}
}

func TestProjectActive(t *testing.T) {
	sub := &models.Subscription{
		UserID:         "u",
		Status:         models.StatusActive,
		EndDate:        now.Add(10*24*time.Hour + time.Minute),
		NextPaymentDue: now.Add(11 * 24 * time.Hour),
		AutoRenewal:    true,
	}

	e := Project(sub, now)
	assert.True(t, e.IsActive)
	assert.False(t, e.InGracePeriod)
	assert.Equal(t, 11, e.DaysRemaining)
	assert.Equal(t, 0, e.GracePeriodRemaining)
	assert.Equal(t, sub.NextPaymentDue, e.NextPaymentDue)
}

func TestProjectGrace(t *testing.T) {
	grace := now.Add(3 * 24 * time.Hour)
	sub := &models.Subscription{
		UserID:         "u",
		Status:         models.StatusGrace,
		EndDate:        now.Add(-4 * 24 * time.Hour),
		GracePeriodEnd: &grace,
	}

	e := Project(sub, now)
	assert.False(t, e.IsActive)
	assert.True(t, e.InGracePeriod)
	assert.Equal(t, 0, e.DaysRemaining)
	assert.Equal(t, 3, e.GracePeriodRemaining)
	assert.Equal(t, grace, *e.GracePeriodEnd)
}

func TestProjectTrialAndCancelled(t *testing.T) {
	trial := Project(&models.Subscription{Status: models.StatusTrial, EndDate: now.Add(time.Hour)}, now)
	assert.True(t, trial.IsTrial)
	assert.False(t, trial.IsActive)
	assert.Equal(t, 1, trial.DaysRemaining)

	cancelled := Project(&models.Subscription{Status: models.StatusCancelled, EndDate: now.Add(48 * time.Hour)}, now)
	assert.False(t, cancelled.IsActive)
	assert.Equal(t, 0, cancelled.DaysRemaining)
}
