package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
//
// Operations that check a quota run in one READ COMMITTED transaction that
// first locks the room row with SELECT ... FOR UPDATE and then the account
// row. Counts are re-read after the locks are held.
type Store struct {
	pool *pgxpool.Pool
	cfg  *StoreConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStore creates a store on top of an existing pool.
func NewStore(pool *pgxpool.Pool, cfg *StoreConfig) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	return &Store{
		pool:   pool,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins background pool monitoring.
func (s *Store) Start() error {
	log.Info().Msg("Starting PostgreSQL store")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorConnectionPool()
	}()

	return nil
}

// Stop stops background tasks and closes the pool.
func (s *Store) Stop() error {
	log.Info().Msg("Stopping PostgreSQL store")

	close(s.stopCh)
	s.wg.Wait()
	s.pool.Close()

	log.Info().Msg("PostgreSQL store stopped")
	return nil
}

// monitorConnectionPool logs connection pool statistics periodically.
func (s *Store) monitorConnectionPool() {
	ticker := time.NewTicker(s.cfg.PoolStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.pool.Stat()
			log.Debug().
				Int32("total_conns", stats.TotalConns()).
				Int32("idle_conns", stats.IdleConns()).
				Int32("acquired_conns", stats.AcquiredConns()).
				Int64("acquire_count", stats.AcquireCount()).
				Dur("acquire_duration", stats.AcquireDuration()).
				Msg("Connection pool stats")
		case <-s.stopCh:
			return
		}
	}
}

// inTx runs fn in a transaction, retrying the whole transaction with
// exponential backoff on serialization failures and deadlocks. Business
// errors returned by fn are never retried.
func inTx[T any](ctx context.Context, s *Store, opts pgx.TxOptions, fn func(tx pgx.Tx) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitialInterval
	b.MaxInterval = 20 * s.cfg.RetryInitialInterval

	attempt := 0
	operation := func() (T, error) {
		attempt++

		var result T
		err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
			if s.cfg.LockTimeout > 0 {
				if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.cfg.LockTimeout.Milliseconds())); err != nil {
					return err
				}
			}
			var err error
			result, err = fn(tx)
			return err
		})
		if err == nil {
			return result, nil
		}
		if isRetryable(err) {
			log.Debug().Err(err).Int("attempt", attempt).Msg("Retrying transaction")
			return result, err
		}
		return result, backoff.Permanent(err)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.cfg.MaxTxAttempts),
	)
	if err != nil {
		return result, mapPostgresError(err)
	}
	return result, nil
}

// readWrite is the default transaction mode for mutations.
var readWrite = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// noRows reports whether err means the query matched nothing.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
