package cache

import (
	"errors"
	"strings"
	"sync"
)

// ErrQuotaExceeded is returned by a Store that rejects a write for capacity reasons
var ErrQuotaExceeded = errors.New("cache store quota exceeded")

// Store is the durable key-value substrate the TTL caches are layered on.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
	// RemovePrefix deletes every key that starts with prefix
	RemovePrefix(prefix string) error
}

// MemoryStore is a process-local Store with an optional byte capacity
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]string
	capacity int // bytes of keys+values, 0 means unbounded
	used     int
}

// NewMemoryStore creates a MemoryStore holding at most capacity bytes
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]string),
		capacity: capacity,
	}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + len(key) + len(value)
	if old, ok := m.data[key]; ok {
		used -= len(key) + len(old)
	}
	if m.capacity > 0 && used > m.capacity {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used = used
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) RemovePrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			m.used -= len(k) + len(v)
			delete(m.data, k)
		}
	}
	return nil
}

// Len returns the number of stored keys
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
