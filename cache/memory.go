package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryJanitorInterval = time.Minute

// Memory implements Cache in process with go-cache. It is not shared across
// instances.
type Memory struct {
	mu     sync.Mutex
	store  *gocache.Cache
	prefix string
}

// NewMemory returns an empty in-process cache.
func NewMemory(prefix string) *Memory {
	return &Memory{
		store:  gocache.New(gocache.NoExpiration, memoryJanitorInterval),
		prefix: prefix,
	}
}

func (m *Memory) key(k string) string { return prefixed(m.prefix, k) }

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.store.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	return stringify(v), nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.store.Set(m.key(key), value, expiration(ttl))
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.store.Delete(m.key(k))
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.store.Get(m.key(key))
	return ok, nil
}

func (m *Memory) Take(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	v, ok := m.store.Get(k)
	if !ok {
		return "", ErrNotFound
	}
	m.store.Delete(k)
	return stringify(v), nil
}

func (m *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.key(key)
	_, exp, ok := m.store.GetWithExpiration(k)
	if !ok {
		m.store.Set(k, int64(1), window)
		return 1, window, nil
	}
	n, err := m.store.IncrementInt64(k, 1)
	if err != nil {
		m.store.Set(k, int64(1), window)
		return 1, window, nil
	}
	left := time.Until(exp)
	if exp.IsZero() || left < 0 {
		left = 0
	}
	return n, left, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.store.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// stringify renders stored values the way Redis would return them; counters
// are kept as int64 so IncrementInt64 can operate on them.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
