package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/store"
)

var _ store.JobLock = (*JobLock)(nil)

// JobLock implements store.JobLock with session level advisory locks. The
// connection holding the lock is kept out of the pool until release, so a
// crashed holder frees the lock when its session ends.
type JobLock struct {
	pool *pgxpool.Pool
}

// NewJobLock creates an advisory lock backed by the pool.
func NewJobLock(pool *pgxpool.Pool) *JobLock {
	return &JobLock{pool: pool}
}

// TryAcquire attempts pg_try_advisory_lock for the name without blocking.
func (l *JobLock) TryAcquire(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	key := advisoryKey(name)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, mapPostgresError(err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, mapPostgresError(err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		defer conn.Release()

		var unlocked bool
		if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked); err != nil {
			// Drop the session so the server frees the lock.
			_ = conn.Conn().Close(ctx)
			return fmt.Errorf("failed to release advisory lock %q: %w", name, err)
		}
		if !unlocked {
			log.Warn().Str("lock", name).Msg("Advisory lock was not held at release")
		}
		return nil
	}

	return release, true, nil
}

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("wishroom:" + name))
	return int64(h.Sum64())
}
