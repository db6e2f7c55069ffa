package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Locker makes sure a single replica sweeps at a time. TryLock never waits: a sweep that cannot
// take the lock is skipped.
type Locker interface {
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

type localLocker struct {
	mu sync.Mutex
}

// NewLocalLocker returns a lock scoped to the process, for databases without advisory locks.
func NewLocalLocker() Locker {
	return &localLocker{}
}

func (l *localLocker) TryLock(_ context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// AdvisoryLocker holds a postgres session advisory lock for the duration of a sweep.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
	id   int64
}

func NewAdvisoryLocker(pool *pgxpool.Pool, id int64) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, id: id}
}

func (a *AdvisoryLocker) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", a.id).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", a.id); err != nil {
			zap.S().Named("reconciler").Errorw("failed to release advisory lock, dropping the session", "lock_id", a.id, "error", err)
			// the lock belongs to the session: closing it is the only way left to free it
			_ = conn.Hijack().Close(ctx)
			return
		}
		conn.Release()
	}
	return release, true, nil
}
