package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/pawbridge/paw-middleware/internal/metrics"
)

const (
	lockTTL        = time.Second
	lockRetries    = 10
	lockRetryDelay = 200 * time.Millisecond
)

// Locker implements named mutexes on a Postgres lease table. A lock is a
// row with a holder token and an expiry; an expired row may be stolen.
// Holders that outlive the TTL must treat their work as aborted.
type Locker struct {
	db *bun.DB
}

// NewLocker creates a Locker on the given database.
func NewLocker(db *bun.DB) *Locker {
	return &Locker{db: db}
}

// Acquire takes the named lock, retrying up to 10 times with
// 200ms +/- 200ms jitter. It returns a release func, or
// ErrLockContention when the retries are exhausted.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	holder := uuid.NewString()

	for attempt := 0; attempt < lockRetries; attempt++ {
		if attempt > 0 {
			metrics.LockRetries.Inc()
			jitter := time.Duration(rand.Int63n(int64(2 * lockRetryDelay)))
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ok, err := l.tryAcquire(ctx, name, holder)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}
		if ok {
			return func() { l.release(name, holder) }, nil
		}
	}

	return nil, fmt.Errorf("lock %s after %d attempts: %w", name, lockRetries, ErrLockContention)
}

func (l *Locker) tryAcquire(ctx context.Context, name, holder string) (bool, error) {
	now := time.Now()
	res, err := l.db.NewInsert().
		Model(&LockDao{Name: name, Holder: holder, ExpiresAt: now.Add(lockTTL)}).
		On("CONFLICT (name) DO UPDATE").
		Set("holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at").
		Where("l.expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// release deletes the lock row only if we still hold it. Runs on a
// fresh context so unlocking survives the caller's cancellation.
func (l *Locker) release(name, holder string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = l.db.NewDelete().
		Model((*LockDao)(nil)).
		Where("name = ? AND holder = ?", name, holder).
		Exec(ctx)
}

func balanceLockName(native string) string {
	return "balance:" + native
}

func swapOutLockName(native string) string {
	return "swap-to-wrapped:" + native
}
