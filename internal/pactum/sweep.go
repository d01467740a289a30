package pactum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-coin/pactum/internal/lifecycle"
	"github.com/core-coin/pactum/internal/metrics"
	"github.com/core-coin/pactum/internal/models"
)

const (
	sweepAttempts = 3
	sweepBackoff  = 100 * time.Millisecond
)

// ProcessMonthlyChecks moves every due subscription through expired, grace and cancelled.
// Only one instance sweeps at a time; the others report Skipped.
func (p *Pactum) ProcessMonthlyChecks(ctx context.Context) (*models.SweepResult, error) {
	result := &models.SweepResult{StartedAt: p.now()}

	acquired, err := p.repo.AcquireLock(ctx, sweepLockName, p.opts.InstanceID, p.opts.SweepLockTTL)
	if err != nil {
		return nil, models.PersistenceError(err)
	}
	if !acquired {
		result.Skipped = true
		return result, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.repo.ReleaseLock(releaseCtx, sweepLockName, p.opts.InstanceID); err != nil {
			p.logger.Warnw("Failed to release sweep lock", "error", err)
		}
	}()

	var mu sync.Mutex
	var afterID int64
	for {
		page, err := p.repo.ListSubscriptionsByStatus(ctx, models.SweepStatuses, afterID, sweepPageSize)
		if err != nil {
			return nil, models.PersistenceError(err)
		}
		if len(page) == 0 {
			break
		}

		g := new(errgroup.Group)
		g.SetLimit(p.opts.SweepConcurrency)
		for _, sub := range page {
			userID := sub.UserID
			g.Go(func() error {
				tr, err := p.sweepOne(ctx, userID)

				mu.Lock()
				defer mu.Unlock()
				result.Processed++
				if err != nil {
					result.Failed++
					metrics.SweepFailures.Inc()
					p.logger.Errorw("Failed to sweep subscription", "user_id", userID, "error", err)
					return nil
				}
				if tr.Entered(models.StatusExpired) {
					result.Expired++
				}
				if tr.Entered(models.StatusGrace) {
					result.GraceStarted++
				}
				if tr.Entered(models.StatusCancelled) {
					result.Cancelled++
				}
				return nil
			})
		}
		_ = g.Wait()

		afterID = page[len(page)-1].ID
		if len(page) < sweepPageSize || ctx.Err() != nil {
			break
		}
		if !p.renewSweepLock(ctx) {
			break
		}
	}

	result.Duration = p.now().Sub(result.StartedAt)
	metrics.SweepDuration.Observe(result.Duration.Seconds())
	p.logger.Infow("Subscription sweep completed",
		"processed", result.Processed,
		"expired", result.Expired,
		"grace_started", result.GraceStarted,
		"cancelled", result.Cancelled,
		"failed", result.Failed,
		"duration", result.Duration,
	)

	summary := *result
	p.notify(&models.Event{Kind: models.EventSweepCompleted, Sweep: &summary})
	return result, ctx.Err()
}

// renewSweepLock extends the lease before the next page. A lost lease ends the sweep,
// the remaining pages belong to whichever instance holds the lock now.
func (p *Pactum) renewSweepLock(ctx context.Context) bool {
	held, err := p.repo.AcquireLock(ctx, sweepLockName, p.opts.InstanceID, p.opts.SweepLockTTL)
	if err != nil {
		p.logger.Errorw("Failed to renew sweep lock, stopping sweep", "error", err)
		return false
	}
	if !held {
		p.logger.Warnw("Sweep lock taken over by another instance, stopping sweep", "instance_id", p.opts.InstanceID)
		return false
	}
	return true
}

// sweepOne advances a single subscription, retrying on version conflicts and transient store errors.
func (p *Pactum) sweepOne(ctx context.Context, userID string) (lifecycle.Transition, error) {
	backoff := sweepBackoff
	var lastErr error
	for attempt := 1; attempt <= sweepAttempts; attempt++ {
		_, tr, err := p.advance(ctx, userID)
		if err == nil {
			return tr, nil
		}
		// the record may have been removed or become unreachable for good
		if errors.Is(err, models.ErrSubscriptionNotFound) || ctx.Err() != nil {
			return lifecycle.Transition{}, err
		}
		lastErr = err

		if attempt == sweepAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return lifecycle.Transition{}, ctx.Err()
		}
	}
	return lifecycle.Transition{}, fmt.Errorf("giving up after %d attempts: %w", sweepAttempts, lastErr)
}
