package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"timesaver/internal/types"
)

// refreshLockKey is the advisory lock id guarding the refresh pipeline so
// that at most one instance across the cluster repopulates the table at a
// time.
const refreshLockKey int64 = 0x7473_7672 // "tsvr"

// LockRepo wraps Postgres session advisory locks. Session locks live on a
// single connection, so the repo pins one from the pool for the duration of
// the guarded work.
type LockRepo struct {
	pool *pgxpool.Pool
}

// NewLockRepo creates a LockRepo over the connection pool.
func NewLockRepo(pool *pgxpool.Pool) *LockRepo {
	return &LockRepo{pool: pool}
}

// WithRefreshLock runs fn while holding the refresh advisory lock. It
// returns false without running fn when another instance holds the lock.
func (r *LockRepo) WithRefreshLock(ctx context.Context, fn func(ctx context.Context)) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire connection for refresh lock", err)
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, refreshLockKey).Scan(&acquired); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire refresh lock", err)
	}
	if !acquired {
		return false, nil
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, refreshLockKey)

	fn(ctx)
	return true, nil
}
