package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/store"
	memorystore "github.com/wolfeidau/wishroom/internal/store/memory"
	postgresstore "github.com/wolfeidau/wishroom/internal/store/postgres"
	redisstore "github.com/wolfeidau/wishroom/internal/store/redis"
	"github.com/wolfeidau/wishroom/internal/telemetry"
)

type Globals struct {
	Dev     bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// BackendFlags selects the store and the scheduler lock.
type BackendFlags struct {
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"WISHROOM_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	LockType string     `help:"delivery lock (auto, memory, postgres or redis); auto follows the store type" default:"auto" env:"WISHROOM_LOCK_TYPE" enum:"auto,memory,postgres,redis"`
	Redis    RedisFlags `embed:"" prefix:"redis-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"WISHROOM_POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20" env:"WISHROOM_POSTGRES_MAX_CONNS"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2" env:"WISHROOM_POSTGRES_MIN_CONNS"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600" env:"WISHROOM_POSTGRES_MAX_CONN_LIFETIME"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800" env:"WISHROOM_POSTGRES_MAX_CONN_IDLE_TIME"`

	// Session Configuration
	StatementTimeout int32 `help:"server side statement timeout in seconds (negative disables)" default:"10" env:"WISHROOM_POSTGRES_STATEMENT_TIMEOUT"`
	IdleInTxTimeout  int32 `help:"idle in transaction session timeout in seconds (negative disables)" default:"30" env:"WISHROOM_POSTGRES_IDLE_IN_TX_TIMEOUT"`

	// Transaction Configuration
	MaxTxAttempts uint          `help:"attempts for transactions aborted by serialization failures or deadlocks" default:"5" env:"WISHROOM_POSTGRES_MAX_TX_ATTEMPTS"`
	LockTimeout   time.Duration `help:"how long a statement waits for a row lock (negative disables)" default:"2s" env:"WISHROOM_POSTGRES_LOCK_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"WISHROOM_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or WISHROOM_POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,

		StatementTimeout: s.StatementTimeout,
		IdleInTxTimeout:  s.IdleInTxTimeout,
	}
}

type RedisFlags struct {
	Addr      string        `help:"Redis address used for the delivery lock" env:"WISHROOM_REDIS_ADDR"`
	Username  string        `help:"Redis username" env:"WISHROOM_REDIS_USERNAME"`
	Password  string        `help:"Redis password" env:"WISHROOM_REDIS_PASSWORD"`
	DB        int           `help:"Redis database number" default:"0" env:"WISHROOM_REDIS_DB"`
	KeyPrefix string        `help:"prefix for lock keys" default:"wishroom:lock:" env:"WISHROOM_REDIS_KEY_PREFIX"`
	LockTTL   time.Duration `help:"lock TTL, extended while the lock is held" default:"2m" env:"WISHROOM_REDIS_LOCK_TTL"`
}

// backend holds the opened store and lock along with their cleanup.
type backend struct {
	store   store.Store
	lock    store.JobLock
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend opens the configured store and lock. When migrate is true the
// PostgreSQL schema is migrated regardless of AutoMigrate.
func openBackend(ctx context.Context, log zerolog.Logger, flags *BackendFlags, migrate bool) (*backend, error) {
	b := &backend{}

	switch flags.StoreType {
	case "postgres":
		if err := flags.PostgresStore.validate(); err != nil {
			return nil, err
		}

		pool, err := postgresstore.NewPool(ctx, flags.PostgresStore.poolConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if migrate || flags.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		pgStore, err := postgresstore.NewStore(pool, &postgresstore.StoreConfig{
			MaxTxAttempts: flags.PostgresStore.MaxTxAttempts,
			LockTimeout:   flags.PostgresStore.LockTimeout,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		if err := pgStore.Start(); err != nil {
			pool.Close()
			return nil, err
		}
		// Stop closes the pool
		b.closers = append(b.closers, func() {
			if err := pgStore.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop store")
			}
		})
		b.store = pgStore

		if flags.LockType == "auto" || flags.LockType == "postgres" {
			b.lock = postgresstore.NewJobLock(pool)
		}

		log.Info().Msg("Using PostgreSQL store")

	default:
		if flags.LockType == "postgres" {
			return nil, errors.New("postgres lock requires the postgres store")
		}
		b.store = memorystore.NewStore()
		log.Info().Msg("Using in-memory store")
	}

	switch flags.LockType {
	case "redis":
		lock, err := redisstore.Connect(ctx, redisstore.Options{
			Addr:      flags.Redis.Addr,
			Username:  flags.Redis.Username,
			Password:  flags.Redis.Password,
			DB:        flags.Redis.DB,
			KeyPrefix: flags.Redis.KeyPrefix,
			TTL:       flags.Redis.LockTTL,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := lock.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		})
		b.lock = lock
		log.Info().Str("addr", flags.Redis.Addr).Msg("Using Redis delivery lock")
	case "memory":
		b.lock = memorystore.NewJobLock()
	default:
		if b.lock == nil {
			b.lock = memorystore.NewJobLock()
		}
	}

	return b, nil
}

// setupTelemetry starts the OpenTelemetry providers when enabled and returns
// a function flushing them.
func setupTelemetry(ctx context.Context, log zerolog.Logger, enabled bool, service, version string) func() {
	if !enabled {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: service,
		Version:     version,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
