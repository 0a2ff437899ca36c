package cache

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore rejects the first failures writes with err
type flakyStore struct {
	*MemoryStore
	failures int
	err      error
	sets     int
	removes  int
}

func (f *flakyStore) Set(key, value string) error {
	f.sets++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return f.MemoryStore.Set(key, value)
}

func (f *flakyStore) Remove(key string) error {
	f.removes++
	return f.MemoryStore.Remove(key)
}

func newTestCache(store Store, clk clock.Clock, version int) *TTLCache[string] {
	return New[string](store, Options{
		Namespace:  "test",
		Version:    version,
		DefaultTTL: 10 * time.Minute,
		Clock:      clk,
	})
}

func TestTTLCache_ExpiryBoundary(t *testing.T) {
	for _, ttl := range []time.Duration{time.Millisecond * 5, time.Minute, 15 * time.Minute, 30 * time.Minute} {
		clk := clock.NewMock()
		c := newTestCache(NewMemoryStore(0), clk, 1)

		c.Set("k", "value", ttl)

		clk.Add(ttl - time.Millisecond)
		v, ok := c.Get("k")
		require.True(t, ok, "entry should be valid 1ms before expiry (ttl %s)", ttl)
		assert.Equal(t, "value", v)

		clk.Add(2 * time.Millisecond)
		_, ok = c.Get("k")
		assert.False(t, ok, "entry should be absent 1ms after expiry (ttl %s)", ttl)
	}
}

func TestTTLCache_ValidExactlyAtExpiry(t *testing.T) {
	clk := clock.NewMock()
	c := newTestCache(NewMemoryStore(0), clk, 1)

	c.Set("k", "value", time.Minute)
	clk.Add(time.Minute)

	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestTTLCache_ExpiredEntryIsRemoved(t *testing.T) {
	clk := clock.NewMock()
	store := NewMemoryStore(0)
	c := newTestCache(store, clk, 1)

	c.SetDefault("k", "value")
	clk.Add(c.DefaultTTL() + time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestTTLCache_VersionIsolation(t *testing.T) {
	clk := clock.NewMock()
	store := NewMemoryStore(0)

	writer := newTestCache(store, clk, 1)
	reader := newTestCache(store, clk, 2)

	writer.SetDefault("k", "v1 data")

	_, ok := reader.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len(), "mismatched entry should be cleared")

	_, ok = writer.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore(0)
	require.NoError(t, store.Set("test:k", "{not json"))
	c := newTestCache(store, clock.NewMock(), 1)

	v, ok := c.Get("k")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 0, store.Len())
}

func TestTTLCache_QuotaClearsNamespaceAndRetries(t *testing.T) {
	store := NewMemoryStore(300)
	clk := clock.NewMock()
	c := newTestCache(store, clk, 1)
	other := New[string](store, Options{Namespace: "other", Version: 1, DefaultTTL: time.Minute, Clock: clk})

	other.SetDefault("o", "1")
	c.SetDefault("a", strings.Repeat("x", 150))
	_, ok := c.Get("a")
	require.True(t, ok)

	c.SetDefault("b", strings.Repeat("y", 150))

	_, ok = c.Get("a")
	assert.False(t, ok, "older entries of the full namespace are evicted")
	v, ok := c.Get("b")
	require.True(t, ok, "retry succeeds once space is freed")
	assert.Equal(t, strings.Repeat("y", 150), v)
	v, ok = other.Get("o")
	require.True(t, ok, "other namespaces on the store survive")
	assert.Equal(t, "1", v)
}

func TestTTLCache_SecondQuotaFailureIsSwallowed(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 10, err: ErrQuotaExceeded}
	c := newTestCache(store, clock.NewMock(), 1)

	assert.NotPanics(t, func() { c.SetDefault("k", "value") })
	assert.Equal(t, 2, store.sets, "exactly one retry")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_OtherWriteErrorsAreNotRetried(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 1, err: errors.New("disk I/O error")}
	c := newTestCache(store, clock.NewMock(), 1)

	c.SetDefault("k", "value")

	assert.Equal(t, 1, store.sets)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_Clear(t *testing.T) {
	c := newTestCache(NewMemoryStore(0), clock.NewMock(), 1)
	c.SetDefault("k", "value")

	c.Clear("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestListCache_MutationsNeedWarmEntry(t *testing.T) {
	clk := clock.NewMock()
	store := NewMemoryStore(0)
	c := NewObservationCache(store, clk, nil, 0)
	key := SubjectKey("cow-1")

	c.AddToCache(key, models.Observation{ID: "o1"})
	c.RemoveFromCache(key, "o1")

	_, ok := c.Get(key)
	assert.False(t, ok, "mutation helpers must not populate a cold cache")
	assert.Equal(t, 0, store.Len())

	c.SetDefault(key, []models.Observation{{ID: "o1"}})
	clk.Add(ObservationTTL + time.Millisecond)
	c.AddToCache(key, models.Observation{ID: "o2"})

	_, ok = c.Get(key)
	assert.False(t, ok, "mutation helpers must not revive an expired entry")
}

func TestListCache_AddAndRemoveKeepExpiry(t *testing.T) {
	clk := clock.NewMock()
	c := NewObservationCache(NewMemoryStore(0), clk, nil, 0)
	key := SubjectKey("cow-1")

	c.SetDefault(key, []models.Observation{{ID: "o1", EstimatedWeightKg: 400}})
	clk.Add(20 * time.Minute)

	c.AddToCache(key, models.Observation{ID: "o2", EstimatedWeightKg: 410})
	c.AddToCache(key, models.Observation{ID: "o1", EstimatedWeightKg: 401})

	items, ok := c.Get(key)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "o1", items[0].ID)
	assert.Equal(t, 401.0, items[0].EstimatedWeightKg)
	assert.Equal(t, "o2", items[1].ID)

	c.RemoveFromCache(key, "o2")
	items, ok = c.Get(key)
	require.True(t, ok)
	require.Len(t, items, 1)

	clk.Add(10*time.Minute + time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "optimistic updates keep the original expiry")
}

func TestNamedCaches_DoNotShareKeys(t *testing.T) {
	clk := clock.NewMock()
	store := NewMemoryStore(0)
	dashboard := NewDashboardCache(store, clk, nil, 0)
	observations := NewObservationCache(store, clk, nil, 0)
	key := SubjectKey("cow-1")

	dashboard.SetDefault(key, models.DashboardStats{SubjectID: "cow-1", ObservationCount: 3})
	observations.SetDefault(key, []models.Observation{{ID: "o1"}})

	assert.Equal(t, 2, store.Len())
	assert.NotEqual(t, DashboardVersion, ObservationVersion)

	stats, ok := dashboard.Get(key)
	require.True(t, ok)
	assert.Equal(t, 3, stats.ObservationCount)

	clk.Add(DashboardTTL + time.Millisecond)
	_, ok = dashboard.Get(key)
	assert.False(t, ok)
	_, ok = observations.Get(key)
	assert.True(t, ok, "observation cache has the longer default TTL")
}

func TestMemoryStore_RemovePrefix(t *testing.T) {
	store := NewMemoryStore(100)
	require.NoError(t, store.Set("ns:a", "1"))
	require.NoError(t, store.Set("ns:b", "2"))
	require.NoError(t, store.Set("nsx:c", "3"))

	require.NoError(t, store.RemovePrefix("ns:"))

	assert.Equal(t, 1, store.Len())
	_, ok, _ := store.Get("nsx:c")
	assert.True(t, ok)
	require.NoError(t, store.Set("big", strings.Repeat("z", 90)), "removed entries release their capacity")
}

func TestMemoryStore_Capacity(t *testing.T) {
	store := NewMemoryStore(10)

	require.NoError(t, store.Set("a", "12345"))
	assert.ErrorIs(t, store.Set("b", "1234567"), ErrQuotaExceeded)
	require.NoError(t, store.Set("a", "123456789"), "overwriting reuses the old entry's space")

	require.NoError(t, store.Remove("a"))
	require.NoError(t, store.Set("b", "1234567"))
}
