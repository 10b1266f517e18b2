package ratelimit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/advdv/osmhttp/ratelimit"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testConfig = ratelimit.Config{
	Default:   ratelimit.Limits{BytesPerSec: 100, MaxBytes: 1000},
	Moderator: ratelimit.Limits{BytesPerSec: 1000, MaxBytes: 10000},
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLimiter(t *testing.T, store ratelimit.Store) (*ratelimit.BucketLimiter, *clock) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	lim, err := ratelimit.New(store, testConfig, ratelimit.WithClock(clk.Now))
	require.NoError(t, err)
	return lim, clk
}

func TestBucketLevel(t *testing.T) {
	b := ratelimit.Bucket{LastUpdate: 100, BytesServed: 1000}
	assert.Equal(t, int64(1000), b.Level(100, 50))
	assert.Equal(t, int64(500), b.Level(110, 50))
	assert.Equal(t, int64(0), b.Level(120, 50))
	assert.Equal(t, int64(0), b.Level(200, 50))
}

func TestLimiterThrottlesAndDrains(t *testing.T) {
	ctx := t.Context()
	store := ratelimit.NewMemoryStore()
	lim, clk := newLimiter(t, store)

	allowed, _, err := lim.Check(ctx, "addr:1.2.3.4", false)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, lim.Update(ctx, "addr:1.2.3.4", 999, false))
	allowed, _, err = lim.Check(ctx, "addr:1.2.3.4", false)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, lim.Update(ctx, "addr:1.2.3.4", 1250, false))
	allowed, retryAfter, err := lim.Check(ctx, "addr:1.2.3.4", false)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 13, retryAfter)

	_, ok, err := store.Get(ctx, ratelimit.KeyPrefix+"addr:1.2.3.4")
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(13 * time.Second)
	allowed, _, err = lim.Check(ctx, "addr:1.2.3.4", false)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMemoryStoreDropsDrainedBuckets(t *testing.T) {
	ctx := t.Context()
	store := ratelimit.NewMemoryStore()
	start := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.Add(ctx, "a", 100, start, 100))
	require.NoError(t, store.Add(ctx, "b", 100, start.Add(30*time.Second), 100))
	require.Equal(t, 2, store.Len())

	require.NoError(t, store.Add(ctx, "c", 10_000, start.Add(61*time.Second), 100))
	require.Equal(t, 1, store.Len())

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	b, ok, err := store.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10_000), b.BytesServed)
}

func TestLimiterModeratorLimits(t *testing.T) {
	ctx := t.Context()
	lim, _ := newLimiter(t, ratelimit.NewMemoryStore())

	require.NoError(t, lim.Update(ctx, "user:8", 5000, true))

	allowed, _, err := lim.Check(ctx, "user:8", true)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, retryAfter, err := lim.Check(ctx, "user:8", false)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 41, retryAfter)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := t.Context()
	lim, _ := newLimiter(t, ratelimit.NewMemoryStore())

	require.NoError(t, lim.Update(ctx, "user:1", 5000, false))
	allowed, _, err := lim.Check(ctx, "user:2", false)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestNewRejectsInvalidLimits(t *testing.T) {
	_, err := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{})
	require.Error(t, err)
}

func TestUnlimited(t *testing.T) {
	var lim ratelimit.Limiter = ratelimit.Unlimited{}
	require.NoError(t, lim.Update(t.Context(), "user:1", 1<<40, false))
	allowed, _, err := lim.Check(t.Context(), "user:1", false)
	require.NoError(t, err)
	require.True(t, allowed)
}

type failingStore struct{ calls int }

var errDown = errors.New("store down")

func (s *failingStore) Get(context.Context, string) (ratelimit.Bucket, bool, error) {
	s.calls++
	return ratelimit.Bucket{}, false, errDown
}

func (s *failingStore) Add(context.Context, string, int64, time.Time, int64) error {
	s.calls++
	return errDown
}

func TestBreakerStoreFailsOpen(t *testing.T) {
	ctx := t.Context()
	core, logs := observer.New(zap.WarnLevel)
	inner := &failingStore{}
	store := ratelimit.NewBreakerStore(inner, zap.New(core), 2, time.Hour)

	for range 2 {
		_, _, err := store.Get(ctx, "k")
		require.ErrorIs(t, err, errDown)
	}
	require.Equal(t, gobreaker.StateOpen, store.State())
	require.Equal(t, 1, logs.FilterMessage("rate limiter breaker changed state").Len())

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, store.Add(ctx, "k", 10, time.Now(), 1))
	require.Equal(t, 2, inner.calls)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("OSMAPI_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(t.Context()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	ctx := t.Context()
	key := ratelimit.KeyPrefix + "test:" + t.Name()
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	store := ratelimit.NewRedisStore(client)
	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, store.Add(ctx, key, 1000, now, 100))
	require.NoError(t, store.Add(ctx, key, 300, now.Add(5*time.Second), 100))

	b, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ratelimit.Bucket{LastUpdate: now.Unix() + 5, BytesServed: 800}, b)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
