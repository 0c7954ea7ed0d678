package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValue(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	token, got, ok := DecodeValue(EncodeValue("tok", at))
	require.True(t, ok)
	assert.Equal(t, "tok", token)
	assert.True(t, at.Equal(got))

	_, _, ok = DecodeValue("legacy-token")
	assert.False(t, ok)
	_, _, ok = DecodeValue("tok|notanumber")
	assert.False(t, ok)
}

func TestRetry_BackendErrorIsDistinct(t *testing.T) {
	err := Retry(context.Background(), "k", time.Second, func(context.Context) (bool, error) {
		return false, errors.New("connection refused")
	})
	assert.ErrorIs(t, err, ErrLockBackend)
	assert.NotErrorIs(t, err, ErrLockTimeout)
}

func TestRetry_TimesOut(t *testing.T) {
	var attempts atomic.Int32
	start := time.Now()
	err := Retry(context.Background(), "k", 80*time.Millisecond, func(context.Context) (bool, error) {
		attempts.Add(1)
		return false, nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Greater(t, attempts.Load(), int32(1))
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "k", time.Second, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_ReleaseIdempotent(t *testing.T) {
	calls := 0
	h := NewHandle("k", "tok", time.Now(), time.Second, func(context.Context, string, string) error {
		calls++
		return nil
	})
	require.NoError(t, h.Release(context.Background()))
	require.NoError(t, h.Release(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	h, err := l.Acquire(ctx, MemoryKey("m1"), time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, MemoryKey("m1"), 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	locked, _ := l.IsLocked(ctx, MemoryKey("m1"))
	assert.True(t, locked)

	require.NoError(t, h.Release(ctx))
	h2, err := l.Acquire(ctx, MemoryKey("m1"), time.Second)
	require.NoError(t, err)
	require.NoError(t, h2.Release(ctx))
}

func TestMemoryLocker_SelfHealing(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	// 持有者崩溃：获取后从不释放
	_, err := l.Acquire(ctx, "crashed", 100*time.Millisecond)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "crashed", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	time.Sleep(120 * time.Millisecond)
	h, err := l.Acquire(ctx, "crashed", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "crashed", h.Key())
}

func TestMemoryLocker_StaleReleaseIsNoop(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	fresh, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	locked, _ := l.IsLocked(ctx, "k")
	assert.True(t, locked, "stale holder must not release the new owner's lock")
	require.NoError(t, fresh.Release(ctx))
}

func TestMemoryLocker_ForceReleaseAndCleanup(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	base := time.Now()
	l.now = func() time.Time { return base }

	_, err := l.Acquire(ctx, "a", time.Hour)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "b", time.Hour)
	require.NoError(t, err)

	ok, err := l.ForceRelease(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.ForceRelease(ctx, "a")
	assert.False(t, ok)

	n, err := l.CleanupExpired(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err = l.CleanupExpired(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryLocker_Concurrent(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.Acquire(ctx, "shared", 2*time.Second)
			if err != nil {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			h.Release(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}
