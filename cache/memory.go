package cache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// MemoryCache implements an in-memory store with TTL support.
//
// This implementation stores all items in a Go map protected by a read-write mutex,
// making it safe for concurrent access by multiple goroutines. Items are checked for
// expiration on access, but expired items remain in memory until explicitly removed
// by a Cleanup operation or overwritten.
//
// The memory store is suitable for:
//   - Single-process deployments where the shared tiers only need to outlive one unit of work
//   - Tests that need a real store without external services
//
// For sharing across processes, use the Redis implementation instead.
type MemoryCache struct {
	items  map[string]*item
	ttl    time.Duration
	closed bool

	mux sync.RWMutex
}

// NewMemory creates a new in-memory store with the specified default TTL.
//
// A TTL of zero means items do not expire by default, but individual items
// can still have their own TTL set via options.
//
// Example:
//
//	// Create a store with 1 hour default TTL
//	store := cache.NewMemory(time.Hour)
func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[string]*item),
		ttl:   ttl,

		mux: sync.RWMutex{},
	}
}

// Cleanup removes all expired items from the memory store.
func (m *MemoryCache) Cleanup(_ context.Context) error {
	now := time.Now()

	m.mux.Lock()
	defer m.mux.Unlock()

	if m.closed {
		return ErrCacheClosed
	}

	for key, it := range m.items {
		if it.isExpired(now) {
			delete(m.items, key)
		}
	}

	return nil
}

// Delete removes the item associated with the given key.
//
// Missing and invisible keys are ignored. Immutable items written by a different
// owner are kept and ErrImmutable is returned.
func (m *MemoryCache) Delete(_ context.Context, key string, opts ...Option) error {
	o := newOptions(0, opts...)

	m.mux.Lock()
	defer m.mux.Unlock()

	if m.closed {
		return ErrCacheClosed
	}

	it, ok := m.items[key]
	if !ok || it.isExpired(time.Now()) || !it.visibleTo(o.owner) {
		return nil
	}

	if !it.writableBy(o.owner) {
		return ErrImmutable
	}

	delete(m.items, key)
	return nil
}

// Get retrieves the value for the given key from the memory store.
//
// Returns ErrKeyNotFound if the key doesn't exist or is isolated to another owner,
// and ErrKeyExpired if the key exists but has expired.
func (m *MemoryCache) Get(_ context.Context, key string, opts ...Option) ([]byte, error) {
	o := newOptions(0, opts...)

	m.mux.RLock()
	defer m.mux.RUnlock()

	if m.closed {
		return nil, ErrCacheClosed
	}

	stored, ok := m.items[key]
	it, err := lookup(stored, ok, o.owner, time.Now())
	if err != nil {
		return nil, err
	}

	return slices.Clone(it.Value), nil
}

// Has reports whether a visible, non-expired item exists for the key.
func (m *MemoryCache) Has(ctx context.Context, key string, opts ...Option) (bool, error) {
	return has(m.Get(ctx, key, opts...))
}

// Keys returns the sorted keys of every visible, non-expired item.
func (m *MemoryCache) Keys(_ context.Context, opts ...Option) ([]string, error) {
	o := newOptions(0, opts...)
	now := time.Now()

	m.mux.RLock()
	defer m.mux.RUnlock()

	if m.closed {
		return nil, ErrCacheClosed
	}

	keys := make([]string, 0, len(m.items))
	for key, it := range m.items {
		if !it.isExpired(now) && it.visibleTo(o.owner) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	return keys, nil
}

// Set stores the value for the given key, overwriting any existing value.
//
// The value is stored with the default TTL configured for the store unless
// overridden by options.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, opts ...Option) error {
	o := newOptions(m.ttl, opts...)

	m.mux.Lock()
	defer m.mux.Unlock()

	if m.closed {
		return ErrCacheClosed
	}

	if existing, ok := m.items[key]; ok && !existing.isExpired(time.Now()) && !existing.writableBy(o.owner) {
		return ErrImmutable
	}

	m.items[key] = newItem(slices.Clone(value), o)
	return nil
}

// Ping reports ErrCacheClosed once the store has been closed.
func (m *MemoryCache) Ping(_ context.Context) error {
	m.mux.RLock()
	defer m.mux.RUnlock()

	if m.closed {
		return ErrCacheClosed
	}

	return nil
}

// Close marks the store closed and drops its items. Calling Close twice is safe.
func (m *MemoryCache) Close() error {
	m.mux.Lock()
	defer m.mux.Unlock()

	m.closed = true
	m.items = make(map[string]*item)

	return nil
}

// has converts a Get result into an existence check.
func has(_ []byte, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case isMiss(err):
		return false, nil
	default:
		return false, err
	}
}

func isMiss(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrKeyExpired)
}

// Compile-time check to ensure MemoryCache implements the Cache interface.
var _ Cache = (*MemoryCache)(nil)
