package store

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// MemoryKV is a process-local KV used by tests and local runs without
// Redis. TTLs are honored lazily on access.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]memoryKVItem
}

type memoryKVItem struct {
	value   string
	expires time.Time // zero = no ttl
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string]memoryKVItem{}}
}

var _ KV = (*MemoryKV)(nil)

func (m *MemoryKV) live(key string) (memoryKVItem, bool) {
	item, ok := m.data[key]
	if !ok {
		return memoryKVItem{}, false
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(m.data, key)
		return memoryKVItem{}, false
	}
	return item, true
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.live(key)
	if !ok {
		return "", ErrMiss
	}
	return item.value, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.data[key] = memoryKVItem{value: value, expires: exp}
	return nil
}

func (m *MemoryKV) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0)
	for key := range m.data {
		if _, ok := m.live(key); !ok {
			continue
		}
		if matched, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryKV) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.live(key); held {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.data[key] = memoryKVItem{value: "1", expires: exp}
	return true, nil
}

func (m *MemoryKV) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
