package pactum

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/pactum/internal/config"
	"github.com/core-coin/pactum/internal/entitlement"
	"github.com/core-coin/pactum/internal/lifecycle"
	"github.com/core-coin/pactum/internal/locker"
	"github.com/core-coin/pactum/internal/metrics"
	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

const (
	sweepLockName = "subscription-sweep"
	sweepPageSize = 200
)

// Options tunes the manager. Zero values fall back to the defaults in NewPactum.
type Options struct {
	Policy lifecycle.Policy
	// DepositAddresses maps every enabled network to the address payments must reach.
	DepositAddresses map[models.Network]string
	// PriceFloor is the lowest amount ever credited, whatever the caller expects.
	PriceFloor decimal.Decimal

	SweepInterval    time.Duration
	SweepConcurrency int
	SweepLockTTL     time.Duration
	InstanceID       string
	// LockTimeout bounds how long a request waits for another one on the same user.
	LockTimeout time.Duration
}

// OptionsFromConfig derives manager options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	deposits := make(map[models.Network]string, len(models.Networks))
	for _, network := range models.Networks {
		if nc := cfg.Network(network); nc != nil {
			deposits[network] = nc.DepositAddress
		}
	}
	return Options{
		Policy:           lifecycle.PolicyFromDays(cfg.SubscriptionPeriodDays, cfg.GracePeriodDays),
		DepositAddresses: deposits,
		PriceFloor:       cfg.SubscriptionPrice,
		SweepInterval:    cfg.SweepInterval,
		SweepConcurrency: cfg.SweepConcurrency,
		SweepLockTTL:     cfg.SweepLockTTL,
		InstanceID:       cfg.InstanceID,
	}
}

// Pactum is the subscription manager. It is the only writer of subscription state.
type Pactum struct {
	logger *logger.Logger
	opts   Options

	repo     models.Repository
	verifier models.PaymentVerifier
	locker   locker.Locker
	notifier models.EventNotifier

	now func() time.Time
	wg  sync.WaitGroup
}

// NewPactum creates a new subscription manager
func NewPactum(
	repo models.Repository,
	verifier models.PaymentVerifier,
	userLocker locker.Locker,
	notifier models.EventNotifier,
	opts Options,
	logger *logger.Logger,
) *Pactum {
	if opts.Policy.Period == 0 {
		opts.Policy = lifecycle.DefaultPolicy()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	if opts.SweepConcurrency <= 0 {
		opts.SweepConcurrency = 8
	}
	if opts.SweepLockTTL <= 0 {
		opts.SweepLockTTL = 10 * time.Minute
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 15 * time.Second
	}
	if userLocker == nil {
		userLocker = locker.NewKeyedMutex()
	}
	return &Pactum{
		logger:   logger.Named("pactum"),
		opts:     opts,
		repo:     repo,
		verifier: verifier,
		locker:   userLocker,
		notifier: notifier,
		now:      time.Now,
	}
}

// Start runs the periodic sweep until ctx is cancelled.
func (p *Pactum) Start(ctx context.Context) {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	p.logger.Infow("Subscription sweep scheduled", "interval", p.opts.SweepInterval)
	for {
		select {
		case <-ticker.C:
			res, err := p.ProcessMonthlyChecks(ctx)
			if err != nil {
				p.logger.Errorw("Subscription sweep failed", "error", err)
				continue
			}
			if res.Skipped {
				p.logger.Debug("Subscription sweep skipped, another instance holds the lock")
			}
		case <-ctx.Done():
			p.logger.Info("Subscription sweep stopped")
			return
		}
	}
}

// Wait blocks until every pending notification has been delivered.
func (p *Pactum) Wait() {
	p.wg.Wait()
}

func (p *Pactum) VerifyAndApply(ctx context.Context, in models.VerifyInput) (*models.ApplyResult, error) {
	return p.verifyAndApply(ctx, in, lifecycle.PaymentConfirmed)
}

// VerifyAndReactivate checks that the subscription can be reactivated before spending an explorer call.
func (p *Pactum) VerifyAndReactivate(ctx context.Context, in models.VerifyInput) (*models.ApplyResult, error) {
	sub, err := p.GetUserSubscription(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	advanced, _, err := lifecycle.Apply(sub, lifecycle.Event{Kind: lifecycle.PeriodElapsed}, p.now(), p.opts.Policy)
	if err != nil {
		return nil, err
	}
	if advanced.Status != models.StatusCancelled {
		return nil, models.NewError(models.CodeInvalidTransition, "",
			"only cancelled subscriptions can be reactivated", nil)
	}
	return p.verifyAndApply(ctx, in, lifecycle.ReactivateRequested)
}

func (p *Pactum) verifyAndApply(ctx context.Context, in models.VerifyInput, kind lifecycle.EventKind) (*models.ApplyResult, error) {
	txID := strings.TrimSpace(in.TransactionID)
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return nil, models.ValidationError("user id is required")
	case in.Network == "":
		return nil, models.ValidationError("network is required")
	case txID == "":
		return nil, models.ValidationError("transaction id is required")
	case !in.ExpectedAmount.IsPositive():
		return nil, models.ValidationError("expected amount must be positive")
	case !in.Network.Valid():
		return nil, models.NewError(models.CodeNetworkUnsupported, "", "unsupported network "+string(in.Network), nil)
	}

	address, ok := p.opts.DepositAddresses[in.Network]
	if !ok || address == "" {
		return nil, models.NewError(models.CodeNetworkUnsupported, "", "network "+string(in.Network)+" is not configured", nil)
	}

	// A known hash never needs another explorer round trip.
	key := models.PaymentKey(in.Network, txID)
	if res, done, err := p.resolveKnownPayment(ctx, in.UserID, key); done {
		return res, err
	}

	minAmount := decimal.Max(in.ExpectedAmount, p.opts.PriceFloor)
	result := p.verifier.VerifyPayment(ctx, models.VerificationRequest{
		Network:   in.Network,
		Address:   address,
		MinAmount: minAmount,
		TxID:      &txID,
	})
	if !result.Success {
		if result.Error == nil {
			result.Error = models.NewError(models.CodeVerificationFailed, "", "verification failed", nil)
		}
		return &models.ApplyResult{Verification: result}, result.Error
	}
	// an abandoned request must not credit anything
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payment := models.NewPaymentFromResult(in.UserID, result)
	res, err := p.applyPayment(ctx, in.UserID, payment, kind)
	if res != nil {
		res.Verification = result
	}
	return res, err
}

func (p *Pactum) CreateOrExtendSubscription(ctx context.Context, userID string, payment *models.Payment) (*models.ApplyResult, error) {
	return p.applyPayment(ctx, userID, payment, lifecycle.PaymentConfirmed)
}

func (p *Pactum) ReactivateSubscription(ctx context.Context, userID string, payment *models.Payment) (*models.ApplyResult, error) {
	return p.applyPayment(ctx, userID, payment, lifecycle.ReactivateRequested)
}

func (p *Pactum) applyPayment(ctx context.Context, userID string, payment *models.Payment, kind lifecycle.EventKind) (*models.ApplyResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.ValidationError("user id is required")
	}
	if payment == nil || payment.TransactionHash == "" {
		return nil, models.ValidationError("payment with a transaction hash is required")
	}

	unlock, err := p.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if res, done, err := p.resolveKnownPayment(ctx, userID, payment.TransactionHash); done {
		return res, err
	}

	sub, err := p.repo.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, models.PersistenceError(err)
	}

	now := p.now()
	current := sub
	var steps []models.Status
	if sub != nil {
		advanced, tr, err := lifecycle.Apply(sub, lifecycle.Event{Kind: lifecycle.PeriodElapsed}, now, p.opts.Policy)
		if err != nil {
			return nil, err
		}
		current = advanced
		steps = tr.Steps
	}

	payment.UserID = userID
	next, tr, err := lifecycle.Apply(current, lifecycle.Event{Kind: kind, Payment: payment}, now, p.opts.Policy)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyApplied) {
			return &models.ApplyResult{Subscription: sub, AlreadyApplied: true}, nil
		}
		return nil, err
	}

	if sub == nil {
		err = p.repo.CreateSubscription(ctx, next)
	} else {
		newPayment := &next.PaymentHistory[len(next.PaymentHistory)-1]
		err = p.repo.UpdateSubscription(ctx, next, sub.Version, newPayment)
	}
	if err != nil {
		if errors.Is(err, models.ErrDuplicatePayment) {
			// another instance credited the same hash between our check and our write
			if res, done, rerr := p.resolveKnownPayment(ctx, userID, payment.TransactionHash); done {
				return res, rerr
			}
		}
		p.logger.Errorw("Failed to persist payment", "user_id", userID, "tx", payment.TransactionHash, "error", err)
		return nil, models.PersistenceError(err)
	}

	from := models.Status("")
	if sub != nil {
		from = sub.Status
	}
	p.recordTransition(from, next.Status, append(steps, tr.Steps...))
	metrics.PaymentsAppliedTotal.WithLabelValues(string(payment.Network)).Inc()
	p.logger.Infow("Payment applied", "user_id", userID, "tx", payment.TransactionHash,
		"amount", payment.Amount.String(), "status", next.Status, "end_date", next.EndDate)

	eventKind := models.EventPaymentApplied
	if from == models.StatusCancelled || tr.From == models.StatusCancelled {
		eventKind = models.EventReactivated
	}
	p.notify(&models.Event{
		Kind:    eventKind,
		UserID:  userID,
		Status:  next.Status,
		Network: payment.Network,
		Amount:  payment.Amount,
		TxHash:  payment.ChainTxHash,
		EndDate: next.EndDate,
	})
	return &models.ApplyResult{Subscription: next}, nil
}

// resolveKnownPayment answers for a hash that is already recorded. done is false when the hash is new.
func (p *Pactum) resolveKnownPayment(ctx context.Context, userID, key string) (*models.ApplyResult, bool, error) {
	existing, err := p.repo.FindPaymentByHash(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, models.PersistenceError(err)
	}
	if existing.UserID != userID {
		p.logger.Warnw("Transaction already credited to another user", "user_id", userID, "tx", key)
		return nil, true, models.NewError(models.CodePaymentClaimed, "",
			"transaction was already credited to another account", nil)
	}

	sub, err := p.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, true, models.PersistenceError(err)
	}
	return &models.ApplyResult{Subscription: sub, AlreadyApplied: true}, true, nil
}

func (p *Pactum) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := p.repo.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewError(models.CodeSubscriptionNotFound, "", "subscription not found", nil)
		}
		return nil, models.PersistenceError(err)
	}
	return sub, nil
}

// CheckSubscriptionStatus persists any due time-driven transition, then projects the record.
func (p *Pactum) CheckSubscriptionStatus(ctx context.Context, userID string) (*models.Entitlement, error) {
	sub, _, err := p.advance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return entitlement.Project(sub, p.now()), nil
}

// advance applies PeriodElapsed to the user's subscription under the user lock.
func (p *Pactum) advance(ctx context.Context, userID string) (*models.Subscription, lifecycle.Transition, error) {
	unlock, err := p.lockUser(ctx, userID)
	if err != nil {
		return nil, lifecycle.Transition{}, err
	}
	defer unlock()

	sub, err := p.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, lifecycle.Transition{}, err
	}

	next, tr, err := lifecycle.Apply(sub, lifecycle.Event{Kind: lifecycle.PeriodElapsed}, p.now(), p.opts.Policy)
	if err != nil {
		return nil, lifecycle.Transition{}, err
	}
	if !tr.Changed {
		return sub, tr, nil
	}

	if err := p.repo.UpdateSubscription(ctx, next, sub.Version, nil); err != nil {
		p.logger.Errorw("Failed to persist transition", "user_id", userID, "from", tr.From, "to", tr.To, "error", err)
		return nil, lifecycle.Transition{}, models.PersistenceError(err)
	}
	p.recordTransition(tr.From, tr.To, tr.Steps)
	p.notifyTransition(next, tr)
	return next, tr, nil
}

func (p *Pactum) CancelSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	unlock, err := p.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := p.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, tr, err := lifecycle.Apply(sub, lifecycle.Event{Kind: lifecycle.CancelRequested}, p.now(), p.opts.Policy)
	if err != nil {
		return nil, err
	}
	if !tr.Changed {
		return sub, nil
	}

	if err := p.repo.UpdateSubscription(ctx, next, sub.Version, nil); err != nil {
		p.logger.Errorw("Failed to persist cancellation", "user_id", userID, "error", err)
		return nil, models.PersistenceError(err)
	}
	p.recordTransition(tr.From, tr.To, tr.Steps)
	p.logger.Infow("Subscription cancelled", "user_id", userID, "from", tr.From)
	p.notifyTransition(next, tr)
	return next, nil
}

func (p *Pactum) GetSubscriptionStats(ctx context.Context) (*models.SubscriptionStats, error) {
	stats, err := p.repo.GetSubscriptionStats(ctx)
	if err != nil {
		return nil, models.PersistenceError(err)
	}
	return stats, nil
}

func (p *Pactum) lockUser(ctx context.Context, userID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, p.opts.LockTimeout)
	defer cancel()

	unlock, err := p.locker.Lock(lockCtx, "subscription:"+userID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewError(models.CodePersistence, "", "subscription is busy, try again", err)
	}
	return unlock, nil
}

func (p *Pactum) recordTransition(from, to models.Status, steps []models.Status) {
	if from == "" {
		from = "none"
	}
	prev := from
	for _, step := range steps {
		metrics.TransitionsTotal.WithLabelValues(string(prev), string(step)).Inc()
		prev = step
	}
	if len(steps) == 0 && from != to {
		metrics.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (p *Pactum) notifyTransition(sub *models.Subscription, tr lifecycle.Transition) {
	var kind models.EventKind
	switch {
	case tr.Entered(models.StatusCancelled):
		kind = models.EventCancelled
	case tr.Entered(models.StatusGrace):
		kind = models.EventGraceStarted
	default:
		return
	}
	p.notify(&models.Event{
		Kind:    kind,
		UserID:  sub.UserID,
		Status:  sub.Status,
		EndDate: sub.EndDate,
	})
}

// notify delivers event in the background with panic recovery.
func (p *Pactum) notify(event *models.Event) {
	if p.notifier == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = p.now()
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorw("Notifier panicked", "event", event.Kind, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.notifier.Notify(ctx, event)
	}()
}
