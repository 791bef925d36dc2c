package scheduler

import (
	"context"
	"testing"
	"time"

	"tutordesk/testing/testredis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	rc := testredis.SetupSharedRedis(t)
	defer rc.Cleanup(t)

	client := rc.Client(t)
	ctx := context.Background()

	t.Run("second replica cannot acquire held lock", func(t *testing.T) {
		a := NewRedisLocker(client, "tutordesk:")
		b := NewRedisLocker(client, "tutordesk:")

		unlock, ok, err := a.TryLock(ctx, "job", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = b.TryLock(ctx, "job", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		unlock()

		unlockB, ok, err := b.TryLock(ctx, "job", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		unlockB()
	})

	t.Run("stale unlock does not release a newer holder", func(t *testing.T) {
		l := NewRedisLocker(client, "tutordesk:")

		unlockOld, ok, err := l.TryLock(ctx, "ttl", 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		require.Eventually(t, func() bool {
			n, err := client.Exists(ctx, "tutordesk:ttl").Result()
			return err == nil && n == 0
		}, 2*time.Second, 20*time.Millisecond)

		unlockNew, ok, err := l.TryLock(ctx, "ttl", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		unlockOld()

		n, err := client.Exists(ctx, "tutordesk:ttl").Result()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		unlockNew()
	})
}
