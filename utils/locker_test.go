package utils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, err := l.Acquire(ctx, EnrollmentLockKey(1), time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, EnrollmentLockKey(1), time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	// Other keys are independent.
	_, err = l.Acquire(ctx, EnrollmentLockKey(2), time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, EnrollmentLockKey(1), time.Minute)
	require.NoError(t, err)
}

func TestMemoryLockerExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	staleRelease, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The stale holder must not free the new lease.
	require.NoError(t, staleRelease(ctx))
	_, err = l.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	key := "test:" + EnrollmentLockKey(uint(time.Now().UnixNano()%1e6))
	l := NewRedisLocker(client)

	release, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	release, err = l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
