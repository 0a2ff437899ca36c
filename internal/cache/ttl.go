package cache

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/metrics"
)

// Entry is the envelope persisted in the Store. Times are Unix milliseconds.
type Entry[T any] struct {
	Version   int   `json:"version"`
	Data      T     `json:"data"`
	CachedAt  int64 `json:"cachedAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

// Options configures a TTLCache
type Options struct {
	Namespace  string
	Version    int
	DefaultTTL time.Duration
	Clock      clock.Clock
	Logger     *logger.Logger
}

// TTLCache is a versioned, time-expiring cache over a Store. Invalid entries
// (corrupt, other version, expired) are removed and reported as misses; no
// cache failure is ever returned to the caller.
type TTLCache[T any] struct {
	store      Store
	clock      clock.Clock
	namespace  string
	version    int
	defaultTTL time.Duration
	log        *logger.Logger
}

// New creates a TTLCache. Clock and Logger default to the wall clock and a no-op logger.
func New[T any](store Store, opts Options) *TTLCache[T] {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &TTLCache[T]{
		store:      store,
		clock:      opts.Clock,
		namespace:  opts.Namespace,
		version:    opts.Version,
		defaultTTL: opts.DefaultTTL,
		log:        opts.Logger.With("cache", opts.Namespace),
	}
}

func (c *TTLCache[T]) storageKey(key string) string {
	return c.namespace + ":" + key
}

// Get returns the cached value for key, if a valid entry exists
func (c *TTLCache[T]) Get(key string) (T, bool) {
	e, ok := c.entry(key)
	if !ok {
		var zero T
		return zero, false
	}
	return e.Data, true
}

func (c *TTLCache[T]) entry(key string) (Entry[T], bool) {
	var e Entry[T]
	sk := c.storageKey(key)

	raw, ok, err := c.store.Get(sk)
	if err != nil {
		c.log.Warn("cache read failed", "key", sk, "error", err)
		c.lookup("error")
		return e, false
	}
	if !ok {
		c.lookup("miss")
		return e, false
	}

	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.log.Warn("dropping corrupt cache entry", "key", sk, "error", err)
		c.drop(sk, "corrupt")
		return Entry[T]{}, false
	}
	if e.Version != c.version {
		c.drop(sk, "version_mismatch")
		return Entry[T]{}, false
	}
	if c.now() > e.ExpiresAt {
		c.drop(sk, "expired")
		return Entry[T]{}, false
	}

	c.lookup("hit")
	return e, true
}

// Set stores value under key for ttl. A non-positive ttl uses the default.
func (c *TTLCache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	c.write(key, Entry[T]{
		Version:   c.version,
		Data:      value,
		CachedAt:  now,
		ExpiresAt: now + ttl.Milliseconds(),
	})
}

// SetDefault stores value under key with the default TTL
func (c *TTLCache[T]) SetDefault(key string, value T) {
	c.Set(key, value, c.defaultTTL)
}

// Clear removes the entry for key
func (c *TTLCache[T]) Clear(key string) {
	sk := c.storageKey(key)
	if err := c.store.Remove(sk); err != nil {
		c.log.Warn("cache clear failed", "key", sk, "error", err)
	}
}

// ClearAll removes every entry in this cache's namespace. Other caches on
// the same store are left alone.
func (c *TTLCache[T]) ClearAll() {
	prefix := c.namespace + ":"
	if err := c.store.RemovePrefix(prefix); err != nil {
		c.log.Warn("cache clear failed", "prefix", prefix, "error", err)
	}
}

// DefaultTTL returns the TTL used when none is given
func (c *TTLCache[T]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// write persists e. When the store is full the whole namespace is cleared and
// the write retried exactly once; a second failure turns the write into a no-op.
func (c *TTLCache[T]) write(key string, e Entry[T]) {
	sk := c.storageKey(key)
	payload, err := json.Marshal(e)
	if err != nil {
		c.log.Warn("cache entry not serializable", "key", sk, "error", err)
		metrics.CacheWriteFailures.WithLabelValues(c.namespace).Inc()
		return
	}

	err = c.store.Set(sk, string(payload))
	if errors.Is(err, ErrQuotaExceeded) {
		c.log.Warn("cache store full, clearing and retrying", "key", sk)
		c.ClearAll()
		err = c.store.Set(sk, string(payload))
	}
	if err != nil {
		c.log.Warn("cache write dropped", "key", sk, "error", err)
		metrics.CacheWriteFailures.WithLabelValues(c.namespace).Inc()
	}
}

func (c *TTLCache[T]) drop(storageKey, outcome string) {
	if err := c.store.Remove(storageKey); err != nil {
		c.log.Warn("cache clear failed", "key", storageKey, "error", err)
	}
	c.lookup(outcome)
}

func (c *TTLCache[T]) lookup(outcome string) {
	metrics.CacheLookups.WithLabelValues(c.namespace, outcome).Inc()
}

func (c *TTLCache[T]) now() int64 {
	return c.clock.Now().UnixMilli()
}
