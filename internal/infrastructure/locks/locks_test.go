package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bloodbank-ledger/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, timeout time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, timeout, time.Minute), mr
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalize([]string{"c", "a", "", "b", "a"}))
}

func lockers(t *testing.T, timeout time.Duration) map[string]Locker {
	r, _ := newRedisLocker(t, timeout)
	return map[string]Locker{
		"local": NewLocal(timeout),
		"redis": r,
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, l := range lockers(t, 2*time.Second) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := l.Acquire(context.Background(), "ledger:org:O+")
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					release()
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxInside)
		})
	}
}

func TestLocker_TimeoutIsConflict(t *testing.T) {
	for name, l := range lockers(t, 50*time.Millisecond) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "capacity:d1")
			require.NoError(t, err)
			defer release()

			_, err = l.Acquire(context.Background(), "subscription:d1:o1", "capacity:d1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConflict))

			// The key taken before the timeout must have been given back.
			r2, err := l.Acquire(context.Background(), "subscription:d1:o1")
			require.NoError(t, err)
			r2()
		})
	}
}

func TestLocker_ReleaseIsIdempotent(t *testing.T) {
	for name, l := range lockers(t, 100*time.Millisecond) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "k")
			require.NoError(t, err)
			release()
			release()

			again, err := l.Acquire(context.Background(), "k")
			require.NoError(t, err)
			again()
		})
	}
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, 100*time.Millisecond)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	// Simulate TTL expiry and another holder taking the key.
	require.NoError(t, mr.Set(redisKeyPrefix+"k", "someone-else"))
	release()

	v, err := mr.Get(redisKeyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestLocal_CancelledContext(t *testing.T) {
	l := NewLocal(time.Second)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedis_HeldKeyOutlivesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedis(rdb, time.Second, 300*time.Millisecond)

	release, err := l.Acquire(context.Background(), "ledger:org:O+")
	require.NoError(t, err)

	// 400ms of expiry time passes in total, with a renewal tick in between.
	mr.FastForward(200 * time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	mr.FastForward(200 * time.Millisecond)
	assert.True(t, mr.Exists(redisKeyPrefix+"ledger:org:O+"))

	release()
	assert.False(t, mr.Exists(redisKeyPrefix+"ledger:org:O+"))
}
