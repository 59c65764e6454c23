// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratagate/internal/app/store/revocations"
	"github.com/dalemusser/stratagate/internal/app/system/accessgate"
	"go.uber.org/zap"
)

// InactiveSessionCloser closes sessions idle for longer than a threshold.
type InactiveSessionCloser interface {
	CloseInactiveSessions(ctx context.Context, threshold time.Duration) (int64, error)
}

// InactiveSessionCleanupJob closes sessions that have been idle longer than
// threshold. Records are ended rather than deleted so history stays
// available.
func InactiveSessionCleanupJob(sessions InactiveSessionCloser, logger *zap.Logger, threshold time.Duration) Job {
	return Job{
		Name:     "inactive-session-cleanup",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := sessions.CloseInactiveSessions(ctx, threshold)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("closed inactive sessions",
					zap.Int64("count", n),
					zap.Duration("threshold", threshold))
			}
			return nil
		},
	}
}

// TokenPurger removes expired action tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// ActionTokenPurgeJob deletes expired action tokens.
func ActionTokenPurgeJob(tokens TokenPurger, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "action-token-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := tokens.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged expired action tokens", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}

// Sweeper drops idle state, like throttle buckets.
type Sweeper interface {
	Sweep() int
}

// SweepJob calls s.Sweep on every tick.
func SweepJob(name string, s Sweeper, interval time.Duration) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(context.Context) error {
			s.Sweep()
			return nil
		},
	}
}

// IDIterator walks a finite sequence of user IDs.
type IDIterator interface {
	Next(ctx context.Context) bool
	ID() string
	Err() error
	Close(ctx context.Context) error
}

// DisabledLister opens an iterator over every disabled user.
type DisabledLister func(ctx context.Context) (IDIterator, error)

// DisabledSessionSweepJob ends sessions still open for disabled users. It
// catches revocations lost before they reached the retry queue, such as an
// async revoke cut short by a restart.
func DisabledSessionSweepJob(list DisabledLister, revoker accessgate.SessionRevoker, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "disabled-session-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			it, err := list(ctx)
			if err != nil {
				return err
			}
			defer it.Close(ctx)

			var (
				errs  []error
				total int64
			)
			for it.Next(ctx) {
				n, err := revoker.RevokeAll(ctx, it.ID())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if n > 0 {
					logger.Warn("closed sessions left open for disabled user",
						zap.String("user_id", it.ID()),
						zap.Int64("count", n))
				}
				total += n
			}
			if err := it.Err(); err != nil {
				errs = append(errs, err)
			}
			if total > 0 {
				logger.Info("disabled session sweep finished", zap.Int64("closed", total))
			}
			return errors.Join(errs...)
		},
	}
}

// PendingRevocations is the retry queue as seen by the retry job.
type PendingRevocations interface {
	Due(ctx context.Context, now time.Time, limit int64) ([]revocations.Pending, error)
	Done(ctx context.Context, userID string) error
	Reschedule(ctx context.Context, userID string, attempts int, next time.Time, cause error) error
}

// RevocationAuditor records retry outcomes.
type RevocationAuditor interface {
	RevocationRetried(ctx context.Context, userID string, attempts int, revoked int64)
	RevocationFailed(ctx context.Context, userID string, attempts int, cause error)
}

const (
	retryBaseDelay = time.Minute
	retryMaxDelay  = time.Hour
	retryBatch     = 100
)

// RetryDelay returns the wait before the next attempt after attempts
// failures: one minute doubling up to one hour.
func RetryDelay(attempts int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

// RevocationRetryJobName names the retry job for RunOnce.
const RevocationRetryJobName = "revocation-retry"

// RevocationRetryJob re-runs session revocation for users whose revoke
// failed at disable time. Entries leave the queue only after a successful
// revoke; failures back off and stay queued.
func RevocationRetryJob(queue PendingRevocations, revoker accessgate.SessionRevoker, audit RevocationAuditor, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     RevocationRetryJobName,
		Interval: interval,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()
			due, err := queue.Due(ctx, now, retryBatch)
			if err != nil {
				return err
			}

			var errs []error
			for _, p := range due {
				attempts := p.Attempts + 1
				n, err := revoker.RevokeAll(ctx, p.UserID)
				if err != nil {
					next := now.Add(RetryDelay(attempts))
					logger.Warn("session revocation retry failed",
						zap.String("user_id", p.UserID),
						zap.Int("attempts", attempts),
						zap.Time("next_attempt_at", next),
						zap.Error(err))
					if audit != nil {
						audit.RevocationFailed(ctx, p.UserID, attempts, err)
					}
					if rerr := queue.Reschedule(ctx, p.UserID, attempts, next, err); rerr != nil {
						errs = append(errs, rerr)
					}
					continue
				}

				if err := queue.Done(ctx, p.UserID); err != nil {
					errs = append(errs, err)
					continue
				}
				logger.Info("session revocation retry succeeded",
					zap.String("user_id", p.UserID),
					zap.Int("attempts", attempts),
					zap.Int64("revoked", n))
				if audit != nil {
					audit.RevocationRetried(ctx, p.UserID, attempts, n)
				}
			}
			return errors.Join(errs...)
		},
	}
}
