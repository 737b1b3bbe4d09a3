package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// TransactionLocker serializes work on one provider transaction id across
// instances. It is an optimization only; idempotency is enforced by the database.
type TransactionLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

var ErrLockNotObtained = errors.New("lock not obtained")

type RedisTransactionLocker struct {
	Client *redislock.Client
	// Wait bounds how long Obtain retries a held lock.
	Wait time.Duration
}

func (l RedisTransactionLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.Client == nil {
		return nil, ErrLockNotObtained
	}
	wait := l.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	obtainCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	lock, err := l.Client.Obtain(obtainCtx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockNotObtained
		}
		return nil, err
	}
	return lock.Release, nil
}

func callbackLockKey(transactionID string) string {
	return "lock:mpesa:" + transactionID
}

// lockTransaction takes the per-transaction lock when it can. Every failure
// path logs and carries on without it.
func (r *Reconciler) lockTransaction(ctx context.Context, transactionID string) func() {
	noop := func() {}
	if r.Locker == nil {
		return noop
	}
	fields := logrus.Fields{
		"field":          "Reconciler",
		"transaction_id": transactionID,
	}
	release, err := r.Locker.Obtain(ctx, callbackLockKey(transactionID), r.LockTTL)
	if err != nil {
		if errors.Is(err, ErrLockNotObtained) {
			r.logger().WithFields(fields).Warn("could not obtain redis lock; proceeding without redis lock")
		} else {
			r.logger().WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		}
		return noop
	}
	return func() {
		// Release on a fresh context: the request context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if releaseErr := release(releaseCtx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			r.logger().WithFields(fields).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
