package pactum

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/models"
)

// memRepo is an in-memory models.Repository with the same version and uniqueness rules as Postgres.
type memRepo struct {
	mu       sync.Mutex
	subs     map[string]*models.Subscription
	payments map[string]models.Payment
	nextID   int64

	lockHolder string
	failUpdate error
	updates    int
	// acquires counts AcquireLock calls; past stealAfter another instance owns the lock.
	acquires   int
	stealAfter int
}

func newMemRepo() *memRepo {
	return &memRepo{
		subs:     make(map[string]*models.Subscription),
		payments: make(map[string]models.Payment),
	}
}

func (r *memRepo) seed(sub *models.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	sub.Version = 1
	for i := range sub.PaymentHistory {
		sub.PaymentHistory[i].SubscriptionID = sub.ID
		r.payments[sub.PaymentHistory[i].TransactionHash] = sub.PaymentHistory[i]
	}
	r.subs[sub.UserID] = sub.Clone()
}

func (r *memRepo) stored(userID string) *models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[userID].Clone()
}

func (r *memRepo) GetSubscription(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return sub.Clone(), nil
}

func (r *memRepo) FindPaymentByHash(_ context.Context, transactionHash string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.UserID]; ok {
		return models.ErrSubscriptionExists
	}
	for _, p := range sub.PaymentHistory {
		if _, ok := r.payments[p.TransactionHash]; ok {
			return models.ErrDuplicatePayment
		}
	}
	r.nextID++
	sub.ID = r.nextID
	sub.Version = 1
	for i := range sub.PaymentHistory {
		sub.PaymentHistory[i].SubscriptionID = sub.ID
		r.payments[sub.PaymentHistory[i].TransactionHash] = sub.PaymentHistory[i]
	}
	r.subs[sub.UserID] = sub.Clone()
	return nil
}

func (r *memRepo) UpdateSubscription(_ context.Context, sub *models.Subscription, expectedVersion int64, newPayment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	current, ok := r.subs[sub.UserID]
	if !ok || current.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	if newPayment != nil {
		if _, ok := r.payments[newPayment.TransactionHash]; ok {
			return models.ErrDuplicatePayment
		}
		newPayment.SubscriptionID = sub.ID
		r.payments[newPayment.TransactionHash] = *newPayment
	}
	sub.Version = expectedVersion + 1
	r.subs[sub.UserID] = sub.Clone()
	r.updates++
	return nil
}

func (r *memRepo) ListSubscriptionsByStatus(_ context.Context, statuses []models.Status, afterID int64, limit int) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range r.subs {
		if sub.ID <= afterID {
			continue
		}
		for _, s := range statuses {
			if sub.Status == s {
				out = append(out, sub.Clone())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) GetSubscriptionStats(_ context.Context) (*models.SubscriptionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.SubscriptionStats{
		ByStatus:         make(map[models.Status]int64),
		TotalRevenue:     decimal.Zero,
		RevenueByNetwork: make(map[models.Network]decimal.Decimal),
	}
	for _, sub := range r.subs {
		stats.Total++
		stats.ByStatus[sub.Status]++
	}
	for _, p := range r.payments {
		stats.ConfirmedPayments++
		stats.TotalRevenue = stats.TotalRevenue.Add(p.Amount)
		stats.RevenueByNetwork[p.Network] = stats.RevenueByNetwork[p.Network].Add(p.Amount)
	}
	return stats, nil
}

func (r *memRepo) AcquireLock(_ context.Context, _, instanceID string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquires++
	if r.stealAfter > 0 && r.acquires > r.stealAfter {
		r.lockHolder = "other-instance"
	}
	if r.lockHolder != "" && r.lockHolder != instanceID {
		return false, nil
	}
	r.lockHolder = instanceID
	return true, nil
}

func (r *memRepo) ReleaseLock(_ context.Context, _, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockHolder == instanceID {
		r.lockHolder = ""
	}
	return nil
}
