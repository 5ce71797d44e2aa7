package flags

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration, maxSize int) (*Cache, *time.Time) {
	t.Helper()
	cache, err := NewCache(ttl, maxSize)
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	return cache, &now
}

func evalFor(flagID uuid.UUID, userID string, enabled bool) Evaluation {
	return Evaluation{
		Enabled:  enabled,
		FlagID:   flagID,
		FlagName: "dark_mode",
		UserID:   userID,
		Source:   SourceDefault,
	}
}

func TestNewCacheRejectsInvalidConfig(t *testing.T) {
	_, err := NewCache(0, 10)
	require.Error(t, err)

	_, err = NewCache(time.Second, 0)
	require.Error(t, err)

	_, err = NewCache(-time.Second, -1)
	require.Error(t, err)
}

func TestCacheGetMissAndHit(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute, 10)
	flagID := uuid.New()

	_, ok := cache.Get(flagID, "u1")
	require.False(t, ok)

	want := evalFor(flagID, "u1", true)
	cache.Put(flagID, "u1", want)

	got, ok := cache.Get(flagID, "u1")
	require.True(t, ok)
	require.Equal(t, want, got)

	// Same flag, different user is a distinct key.
	_, ok = cache.Get(flagID, "u2")
	require.False(t, ok)
}

func TestCachePutReplacesEntry(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute, 10)
	flagID := uuid.New()

	cache.Put(flagID, "u1", evalFor(flagID, "u1", false))
	cache.Put(flagID, "u1", evalFor(flagID, "u1", true))

	got, ok := cache.Get(flagID, "u1")
	require.True(t, ok)
	require.True(t, got.Enabled)
	require.Equal(t, 1, cache.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, now := newTestCache(t, time.Minute, 10)
	flagID := uuid.New()
	cache.Put(flagID, "u1", evalFor(flagID, "u1", true))

	*now = now.Add(59 * time.Second)
	_, ok := cache.Get(flagID, "u1")
	require.True(t, ok, "entry younger than ttl should be served")

	// Age equal to the TTL already counts as expired.
	*now = now.Add(time.Second)
	_, ok = cache.Get(flagID, "u1")
	require.False(t, ok)
	require.Equal(t, 0, cache.Len(), "expired entry should be removed on lookup")
}

func TestCacheCapacityEvictsExpiredFirst(t *testing.T) {
	cache, now := newTestCache(t, time.Minute, 3)
	flagID := uuid.New()

	cache.Put(flagID, "stale1", evalFor(flagID, "stale1", true))
	cache.Put(flagID, "stale2", evalFor(flagID, "stale2", true))

	*now = now.Add(2 * time.Minute)
	cache.Put(flagID, "fresh", evalFor(flagID, "fresh", true))

	// At capacity with two expired entries: the sweep removes both, the new
	// entry fits, and the fresh one survives.
	cache.Put(flagID, "new", evalFor(flagID, "new", true))

	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get(flagID, "fresh")
	require.True(t, ok)
	_, ok = cache.Get(flagID, "new")
	require.True(t, ok)
}

func TestCacheCapacityEvictsOldestInserted(t *testing.T) {
	cache, now := newTestCache(t, time.Hour, 3)
	flagID := uuid.New()

	cache.Put(flagID, "oldest", evalFor(flagID, "oldest", true))
	*now = now.Add(time.Second)
	cache.Put(flagID, "middle", evalFor(flagID, "middle", true))
	*now = now.Add(time.Second)
	cache.Put(flagID, "newest", evalFor(flagID, "newest", true))

	// Reading "oldest" does not refresh its insertion stamp: eviction is by
	// creation time, not access time.
	_, ok := cache.Get(flagID, "oldest")
	require.True(t, ok)

	*now = now.Add(time.Second)
	cache.Put(flagID, "extra", evalFor(flagID, "extra", true))

	require.Equal(t, 3, cache.Len())
	_, ok = cache.Get(flagID, "oldest")
	require.False(t, ok, "oldest-inserted entry should have been evicted")
	_, ok = cache.Get(flagID, "middle")
	require.True(t, ok)
	_, ok = cache.Get(flagID, "extra")
	require.True(t, ok)
}

func TestCacheNeverExceedsMaxSize(t *testing.T) {
	cache, now := newTestCache(t, time.Hour, 5)
	flagID := uuid.New()

	for i := 0; i < 50; i++ {
		*now = now.Add(time.Millisecond)
		cache.Put(flagID, fmt.Sprintf("user-%d", i), evalFor(flagID, "u", true))
		require.LessOrEqual(t, cache.Len(), 5)
	}
}

func TestCacheInvalidateOverrideIsTargeted(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute, 10)
	flagA := uuid.New()
	flagB := uuid.New()

	cache.Put(flagA, "u1", evalFor(flagA, "u1", true))
	cache.Put(flagA, "u2", evalFor(flagA, "u2", true))
	cache.Put(flagB, "u1", evalFor(flagB, "u1", true))

	cache.InvalidateOverride(flagA, "u1")

	_, ok := cache.Get(flagA, "u1")
	require.False(t, ok)
	_, ok = cache.Get(flagA, "u2")
	require.True(t, ok)
	_, ok = cache.Get(flagB, "u1")
	require.True(t, ok)
}

func TestCacheInvalidateFlagRemovesAllUsers(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute, 10)
	flagA := uuid.New()
	flagB := uuid.New()

	cache.Put(flagA, "u1", evalFor(flagA, "u1", true))
	cache.Put(flagA, "u2", evalFor(flagA, "u2", true))
	cache.Put(flagB, "u1", evalFor(flagB, "u1", true))

	cache.InvalidateFlag(flagA)

	_, ok := cache.Get(flagA, "u1")
	require.False(t, ok)
	_, ok = cache.Get(flagA, "u2")
	require.False(t, ok)
	_, ok = cache.Get(flagB, "u1")
	require.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute, 10)
	flagID := uuid.New()
	cache.Put(flagID, "u1", evalFor(flagID, "u1", true))
	cache.Put(flagID, "u2", evalFor(flagID, "u2", true))

	cache.Clear()
	require.Equal(t, 0, cache.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache, err := NewCache(time.Minute, 100)
	require.NoError(t, err)
	flagID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				userID := fmt.Sprintf("user-%d-%d", n, j%10)
				cache.Put(flagID, userID, evalFor(flagID, userID, j%2 == 0))
				cache.Get(flagID, userID)
				if j%50 == 0 {
					cache.InvalidateFlag(flagID)
				}
			}
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, cache.Len(), 100)
}
