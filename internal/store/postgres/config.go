package postgres

import (
	"fmt"
	"time"
)

// StoreConfig holds behaviour settings for the PostgreSQL store.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// MaxTxAttempts bounds how often a transaction is retried after a
	// serialization failure or deadlock.
	// Default: 5
	MaxTxAttempts uint

	// RetryInitialInterval is the first backoff delay between attempts.
	// Default: 20ms
	RetryInitialInterval time.Duration

	// LockTimeout caps how long a statement waits for a row lock.
	// Default: 2s. Set to a negative value to disable.
	LockTimeout time.Duration

	// PoolStatsInterval is how often pool statistics are logged.
	// Default: 30s
	PoolStatsInterval time.Duration
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.MaxTxAttempts == 0 {
		return fmt.Errorf("max tx attempts must be at least 1")
	}
	if c.RetryInitialInterval <= 0 {
		return fmt.Errorf("retry initial interval must be positive")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.MaxTxAttempts == 0 {
		c.MaxTxAttempts = 5
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = 20 * time.Millisecond
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 2 * time.Second
	}
	if c.PoolStatsInterval == 0 {
		c.PoolStatsInterval = 30 * time.Second
	}
}
