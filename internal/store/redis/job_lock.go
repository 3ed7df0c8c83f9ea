// Package redis provides a store.JobLock backed by Redis for deployments
// that run several scheduler replicas without a shared PostgreSQL database.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wishroom/internal/store"
)

var _ store.JobLock = (*JobLock)(nil)

// Only the holder that set the token may extend or delete the key.
var (
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Options configures the Redis client and lock behaviour.
type Options struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string        // default "wishroom:lock:"
	TTL       time.Duration // default 2m, extended while held
}

// JobLock implements store.JobLock with SET NX PX and a token checked release.
type JobLock struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Connect creates a client from opts and verifies it with PING.
func Connect(ctx context.Context, opts Options) (*JobLock, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewJobLock(rdb, opts.KeyPrefix, opts.TTL), nil
}

// NewJobLock wraps an existing client.
func NewJobLock(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *JobLock {
	if prefix == "" {
		prefix = "wishroom:lock:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &JobLock{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client.
func (l *JobLock) Close() error {
	return l.rdb.Close()
}

// TryAcquire sets the lock key if absent. While held, the key's expiry is
// extended in the background so long runs keep the lock.
func (l *JobLock) TryAcquire(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	key := l.prefix + name

	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis setnx: %w", store.ErrUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(key, token, stop)
	}()

	var once sync.Once
	release := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			wg.Wait()
			if rerr := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); rerr != nil {
				err = fmt.Errorf("redis release %q: %w", name, rerr)
			}
		})
		return err
	}

	return release, true, nil
}

func (l *JobLock) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to extend job lock")
				continue
			}
			if n == 0 {
				log.Warn().Str("key", key).Msg("Job lock lost before release")
				return
			}
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
