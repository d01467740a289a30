package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/pactum/internal/models"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func payment(hash string) *models.Payment {
	return &models.Payment{
		UserID:          "user-1",
		TransactionHash: models.PaymentKey(models.NetworkTRC20, hash),
		ChainTxHash:     hash,
		Amount:          decimal.NewFromInt(100),
		Network:         models.NetworkTRC20,
		PaymentDate:     now,
	}
}

func activeSub(end time.Time) *models.Subscription {
	return &models.Subscription{
		ID:             7,
		UserID:         "user-1",
		Status:         models.StatusActive,
		StartDate:      end.Add(-30 * day),
		EndDate:        end,
		NextPaymentDue: end.Add(day),
		AutoRenewal:    true,
		PaymentHistory: []models.Payment{*payment("first")},
	}
}

func TestFirstPaymentCreatesActiveSubscription(t *testing.T) {
	sub, tr, err := Apply(nil, Event{Kind: PaymentConfirmed, Payment: payment("abc123")}, now, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, now, sub.StartDate)
	assert.Equal(t, now.Add(30*day), sub.EndDate)
	assert.Equal(t, now.Add(31*day), sub.NextPaymentDue)
	assert.Nil(t, sub.GracePeriodEnd)
	assert.True(t, sub.AutoRenewal)
	require.Len(t, sub.PaymentHistory, 1)
	assert.Equal(t, "trc20:abc123", sub.PaymentHistory[0].TransactionHash)
	assert.Equal(t, models.PaymentConfirmed, sub.PaymentHistory[0].Status)
	assert.True(t, tr.Changed)
	assert.Equal(t, models.StatusActive, tr.To)
}

func TestPaymentExtendsFromExistingEndDate(t *testing.T) {
	end := now.Add(5 * day)
	sub := activeSub(end)

	next, _, err := Apply(sub, Event{Kind: PaymentConfirmed, Payment: payment("second")}, now, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, end.Add(30*day), next.EndDate)
	assert.Equal(t, sub.StartDate, next.StartDate)
	assert.Len(t, next.PaymentHistory, 2)
	// input untouched
	assert.Equal(t, end, sub.EndDate)
	assert.Len(t, sub.PaymentHistory, 1)
}

func TestPaymentAfterLapseExtendsFromNow(t *testing.T) {
	end := now.Add(-3 * day)
	grace := end.Add(7 * day)
	sub := activeSub(end)
	sub.Status = models.StatusGrace
	sub.GracePeriodEnd = &grace

	next, tr, err := Apply(sub, Event{Kind: PaymentConfirmed, Payment: payment("late")}, now, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, next.Status)
	assert.Equal(t, now.Add(30*day), next.EndDate)
	assert.Equal(t, now, next.StartDate)
	assert.Nil(t, next.GracePeriodEnd)
	assert.Equal(t, models.StatusGrace, tr.From)
}

func TestEndDateIsMonotonic(t *testing.T) {
	var sub *models.Subscription
	clock := now
	prev := time.Time{}
	for i, gap := range []time.Duration{0, 2 * day, 40 * day, 1 * time.Hour, 90 * day} {
		clock = clock.Add(gap)
		expected := clock
		if sub != nil && sub.EndDate.After(clock) {
			expected = sub.EndDate
		}

		next, _, err := Apply(sub, Event{Kind: PaymentConfirmed, Payment: payment(string(rune('a' + i)))}, clock, DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, expected.Add(30*day), next.EndDate)
		assert.False(t, next.EndDate.Before(prev))
		prev = next.EndDate
		sub = next
	}
}

func TestDuplicatePaymentRejected(t *testing.T) {
	sub := activeSub(now.Add(day))

	_, _, err := Apply(sub, Event{Kind: PaymentConfirmed, Payment: payment("first")}, now, DefaultPolicy())
	assert.True(t, errors.Is(err, models.ErrAlreadyApplied))
}

func TestPaymentRequired(t *testing.T) {
	_, _, err := Apply(nil, Event{Kind: PaymentConfirmed}, now, DefaultPolicy())
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestPeriodElapsedBeforeEndIsNoop(t *testing.T) {
	sub := activeSub(now)

	next, tr, err := Apply(sub, Event{Kind: PeriodElapsed}, now, DefaultPolicy())
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	assert.Equal(t, models.StatusActive, next.Status)
}

func TestPeriodElapsedStartsGrace(t *testing.T) {
	end := now
	sub := activeSub(end)

	next, tr, err := Apply(sub, Event{Kind: PeriodElapsed}, end.Add(time.Second), DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.StatusGrace, next.Status)
	require.NotNil(t, next.GracePeriodEnd)
	assert.Equal(t, end.Add(7*day), *next.GracePeriodEnd)
	assert.Equal(t, []models.Status{models.StatusExpired, models.StatusGrace}, tr.Steps)
	assert.True(t, tr.Entered(models.StatusExpired))
}

func TestPeriodElapsedInGraceIsIdempotent(t *testing.T) {
	sub := activeSub(now)
	policy := DefaultPolicy()

	first, _, err := Apply(sub, Event{Kind: PeriodElapsed}, now.Add(time.Hour), policy)
	require.NoError(t, err)
	second, tr, err := Apply(first, Event{Kind: PeriodElapsed}, now.Add(2*day), policy)
	require.NoError(t, err)

	assert.False(t, tr.Changed)
	assert.Equal(t, *first.GracePeriodEnd, *second.GracePeriodEnd)
}

func TestGraceEndsInCancellation(t *testing.T) {
	grace := now.Add(-time.Hour)
	sub := activeSub(grace.Add(-7 * day))
	sub.Status = models.StatusGrace
	sub.GracePeriodEnd = &grace

	next, tr, err := Apply(sub, Event{Kind: PeriodElapsed}, now, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, next.Status)
	require.NotNil(t, next.CancellationDate)
	assert.Equal(t, now, *next.CancellationDate)
	assert.False(t, next.AutoRenewal)
	assert.Nil(t, next.GracePeriodEnd)
	assert.Equal(t, []models.Status{models.StatusCancelled}, tr.Steps)
}

func TestGraceWindowBoundaries(t *testing.T) {
	end := now
	sub := activeSub(end)
	policy := DefaultPolicy()

	inGrace, _, err := Apply(sub, Event{Kind: PeriodElapsed}, end.Add(time.Second), policy)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGrace, inGrace.Status)

	atEdge, _, err := Apply(inGrace, Event{Kind: PeriodElapsed}, *inGrace.GracePeriodEnd, policy)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGrace, atEdge.Status)

	after, _, err := Apply(inGrace, Event{Kind: PeriodElapsed}, inGrace.GracePeriodEnd.Add(time.Second), policy)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, after.Status)
}

func TestLongLapseCascadesToCancelled(t *testing.T) {
	sub := activeSub(now.Add(-30 * day))

	next, tr, err := Apply(sub, Event{Kind: PeriodElapsed}, now, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, next.Status)
	assert.Equal(t, []models.Status{models.StatusExpired, models.StatusGrace, models.StatusCancelled}, tr.Steps)
}

func TestTrialLapses(t *testing.T) {
	sub := activeSub(now.Add(-time.Minute))
	sub.Status = models.StatusTrial

	next, _, err := Apply(sub, Event{Kind: PeriodElapsed}, now, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, models.StatusGrace, next.Status)
}

func TestCancel(t *testing.T) {
	for _, status := range []models.Status{models.StatusActive, models.StatusExpired, models.StatusGrace, models.StatusTrial} {
		sub := activeSub(now.Add(day))
		sub.Status = status

		next, tr, err := Apply(sub, Event{Kind: CancelRequested}, now, DefaultPolicy())
		require.NoError(t, err, status)
		assert.Equal(t, models.StatusCancelled, next.Status, status)
		assert.Equal(t, now, *next.CancellationDate, status)
		assert.False(t, next.AutoRenewal, status)
		assert.Equal(t, status, tr.From)
	}
}

func TestCancelTwiceIsNoop(t *testing.T) {
	sub := activeSub(now.Add(day))
	first, _, err := Apply(sub, Event{Kind: CancelRequested}, now, DefaultPolicy())
	require.NoError(t, err)

	second, tr, err := Apply(first, Event{Kind: CancelRequested}, now.Add(day), DefaultPolicy())
	require.NoError(t, err)
	assert.False(t, tr.Changed)
	assert.Equal(t, now, *second.CancellationDate)
}

func TestReactivate(t *testing.T) {
	sub := activeSub(now.Add(-20 * day))
	cancelledAt := now.Add(-day)
	sub.Status = models.StatusCancelled
	sub.CancellationDate = &cancelledAt
	sub.AutoRenewal = false

	next, tr, err := Apply(sub, Event{Kind: ReactivateRequested, Payment: payment("back")}, now, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, next.Status)
	assert.Nil(t, next.CancellationDate)
	assert.True(t, next.AutoRenewal)
	assert.Equal(t, now, next.StartDate)
	assert.Equal(t, now.Add(30*day), next.EndDate)
	assert.Equal(t, models.StatusCancelled, tr.From)
}

func TestReactivateRequiresCancelled(t *testing.T) {
	sub := activeSub(now.Add(day))

	_, _, err := Apply(sub, Event{Kind: ReactivateRequested, Payment: payment("x")}, now, DefaultPolicy())
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}

func TestEventsOnMissingSubscription(t *testing.T) {
	for _, kind := range []EventKind{PeriodElapsed, CancelRequested, ReactivateRequested} {
		_, _, err := Apply(nil, Event{Kind: kind}, now, DefaultPolicy())
		assert.True(t, errors.Is(err, models.ErrSubscriptionNotFound), kind)
	}
}

func TestPolicyFromDays(t *testing.T) {
	p := PolicyFromDays(30, 7)
	assert.Equal(t, DefaultPolicy(), p)
}
