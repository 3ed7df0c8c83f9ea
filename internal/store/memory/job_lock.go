package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/wishroom/internal/store"
)

var _ store.JobLock = (*JobLock)(nil)

// JobLock is a process-local store.JobLock for single replica deployments.
type JobLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewJobLock creates a new in-memory job lock.
func NewJobLock() *JobLock {
	return &JobLock{held: make(map[string]bool)}
}

// TryAcquire takes the named lock if it is free.
func (l *JobLock) TryAcquire(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	release := func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}
	return release, true, nil
}
