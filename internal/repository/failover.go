package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"calsync/internal/domain"
)

const recoveryInterval = time.Minute

// FailoverRunLocker prefers the primary locker and falls back to the
// secondary one while the primary is failing.
type FailoverRunLocker struct {
	primary  domain.RunLocker
	fallback domain.RunLocker
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	holders   map[string]domain.RunLocker
}

func NewFailoverRunLocker(primary, fallback domain.RunLocker, logger *zerolog.Logger) *FailoverRunLocker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverRunLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		holders:  make(map[string]domain.RunLocker),
	}
}

func (r *FailoverRunLocker) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverRunLocker) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary run locker failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.Acquire(ctx, key, ttl)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary run locker recovered")
			}
			if ok {
				r.remember(key, r.primary)
			}
			return ok, nil
		}
		r.markDown(err)
	}

	ok, err := r.fallback.Acquire(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if ok {
		r.remember(key, r.fallback)
	}
	return ok, nil
}

func (r *FailoverRunLocker) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	holder, ok := r.holders[key]
	delete(r.holders, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return holder.Release(ctx, key)
}

func (r *FailoverRunLocker) remember(key string, holder domain.RunLocker) {
	r.mu.Lock()
	r.holders[key] = holder
	r.mu.Unlock()
}
