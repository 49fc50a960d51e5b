package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration, maxEntries int) Cache[string] {
	t.Helper()
	c, err := New[string](Config{
		Enabled:       true,
		TTL:           ttl,
		MaxEntries:    maxEntries,
		SweepInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGet_FreshEntryIdentical(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	created, err := c.Set("memories:agent-1", "payload-1")
	require.NoError(t, err)
	assert.True(t, created)

	got, ok := c.Get("memories:agent-1")
	require.True(t, ok)
	assert.Equal(t, "payload-1", got)
}

func TestGet_ExpiredEntryEvicted(t *testing.T) {
	c := newTestCache(t, 30*time.Millisecond, 0)

	_, err := c.Set("k", "v")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "entry past TTL must never be returned as fresh")
	assert.Equal(t, 0, c.Size(), "expired entry is evicted on read")
}

func TestSet_OverwriteReturnsFalse(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	created, err := c.Set("k", "v1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("k", "v2")
	require.NoError(t, err)
	assert.False(t, created)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 1, c.Size(), "overwrite must not create a duplicate entry")
}

func TestSet_EmptyKeyRejected(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	_, err := c.Set("", "v")
	assert.Error(t, err)
}

func TestTrim_InsertionOrderEviction(t *testing.T) {
	c := newTestCache(t, time.Minute, 3)

	for i := 1; i <= 5; i++ {
		_, err := c.Set(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, c.Size())

	// Oldest insertions evicted first
	_, ok := c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k2")
	assert.False(t, ok)

	for i := 3; i <= 5; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok, "k%d should survive trim", i)
	}
}

func TestTrim_OverwriteRefreshesOrder(t *testing.T) {
	c := newTestCache(t, time.Minute, 2)

	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")
	// Refresh "a" so "b" becomes the oldest insertion
	_, _ = c.Set("a", "1b")
	_, _ = c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was oldest after a's refresh")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestSweep_RemovesExpired(t *testing.T) {
	c := newTestCache(t, 20*time.Millisecond, 0)

	_, _ = c.Set("k1", "v1")
	_, _ = c.Set("k2", "v2")

	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond, "sweep should remove expired entries without reads")
}

func TestEvictionCallback(t *testing.T) {
	var evicted []string
	c, err := New[string](Config{
		Enabled:       true,
		TTL:           time.Minute,
		MaxEntries:    1,
		SweepInterval: time.Minute,
	}, WithEvictionCallback[string](func(key string, _ string) {
		evicted = append(evicted, key)
	}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, _ = c.Set("first", "1")
	_, _ = c.Set("second", "2")

	require.Len(t, evicted, 1)
	assert.Equal(t, "first", evicted[0])
}

func TestDelete(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	_, _ = c.Set("k", "v")
	existed, err := c.Delete("k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Delete("k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestClearAndKeys(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	_, _ = c.Set("k1", "v1")
	_, _ = c.Set("k2", "v2")
	assert.ElementsMatch(t, []string{"k1", "k2"}, c.Keys())

	require.NoError(t, c.Clear())
	assert.Empty(t, c.Keys())
	assert.Equal(t, 0, c.Size())
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	_, _ = c.Set("k", "v")
	_, _ = c.Get("k")
	_, _ = c.Get("missing")

	stats := c.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(1), stats.Sets())
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestNoopCache(t *testing.T) {
	c := NewNoop[string]()

	created, err := c.Set("k", "v")
	require.NoError(t, err)
	assert.False(t, created)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Nil(t, c.Stats())
	assert.NoError(t, c.Close())
}

func TestNew_DisabledReturnsNoop(t *testing.T) {
	c, err := New[string](Config{Enabled: false})
	require.NoError(t, err)

	_, _ = c.Set("k", "v")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Enabled: false}.Validate())

	bad := DefaultConfig()
	bad.TTL = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SweepInterval = -time.Second
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxEntries = -1
	assert.Error(t, bad.Validate())
}

func TestClose_Idempotent(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
