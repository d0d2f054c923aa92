package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRunLocker(t *testing.T) {
	locker := NewMemoryRunLocker()
	now := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		ok, err := locker.Acquire(ctx, "meetings:2024-03-04", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = locker.Acquire(ctx, "meetings:2024-03-04", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, locker.Release(ctx, "meetings:2024-03-04"))

		ok, err = locker.Acquire(ctx, "meetings:2024-03-04", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Expiry", func(t *testing.T) {
		ok, err := locker.Acquire(ctx, "tickets:2024-03-05", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		now = now.Add(2 * time.Minute)
		ok, err = locker.Acquire(ctx, "tickets:2024-03-05", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ReleaseUnknown", func(t *testing.T) {
		assert.NoError(t, locker.Release(ctx, "missing"))
	})
}
