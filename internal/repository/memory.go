package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRunLocker is the single-process lock table used when Redis is
// not configured or unreachable.
type MemoryRunLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

func NewMemoryRunLocker() *MemoryRunLocker {
	return &MemoryRunLocker{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (r *MemoryRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expiresAt, ok := r.locks[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	r.locks[key] = now.Add(ttl)
	return true, nil
}

func (r *MemoryRunLocker) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.locks, key)
	r.mu.Unlock()
	return nil
}
