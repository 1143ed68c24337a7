// Package cache provides the physical key-value stores that back shared cache tiers.
//
// Every store implements the same Cache interface:
//   - In-memory storage (MemoryCache)
//   - Redis storage, one key per item under a partition prefix (RedisCache)
//   - Embedded bbolt storage, one bucket per partition (BboltCache)
//
// Items carry metadata next to their bytes:
//   - an expiration time derived from the TTL
//   - the owner namespace that wrote them
//   - a visibility (shared with every owner, or isolated to the writer)
//   - an immutability flag that protects them from other owners
//
// Basic Usage:
//
//	store := cache.NewMemory(time.Hour)
//
//	err := store.Set(ctx, "key", []byte("value"),
//	    cache.WithOwner("billing"),
//	    cache.WithVisibility(cache.VisibilityIsolated),
//	)
//
//	value, err := store.Get(ctx, "key", cache.WithOwner("billing"))
//	if errors.Is(err, cache.ErrKeyNotFound) {
//	    // Handle missing key
//	}
//
//	// Availability probe used by the tier layer before each call
//	if err := store.Ping(ctx); err != nil {
//	    // fall back to process-local state
//	}
package cache

import "context"

// Cache defines the interface for store implementations.
//
// All operations are context-aware and must be safe for concurrent use by
// multiple goroutines. Each call accepts options; WithOwner identifies the
// caller for visibility and immutability checks.
type Cache interface {
	// Set stores the value for the given key, overwriting any existing value.
	//
	// The value is stored with the store's default TTL unless overridden by
	// WithTTL or WithValidUntil.
	//
	// Returns:
	//   - error: nil on success, ErrImmutable if the existing item is immutable and
	//     was written by another owner, otherwise an error describing the failure
	//
	// Example:
	//	err := store.Set(ctx, "user:123", data, cache.WithTTL(30*time.Minute), cache.WithImmutable(true))
	Set(ctx context.Context, key string, value []byte, opts ...Option) error

	// Get retrieves the value for the given key.
	//
	// Returns:
	//   - []byte: The stored value if found, visible and not expired
	//   - error: ErrKeyNotFound if the key doesn't exist or is not visible to the owner,
	//     ErrKeyExpired if the key exists but has expired, otherwise an error
	Get(ctx context.Context, key string, opts ...Option) ([]byte, error)

	// Has reports whether a visible, non-expired value exists for the key.
	Has(ctx context.Context, key string, opts ...Option) (bool, error)

	// Delete removes the item associated with the given key.
	//
	// Deleting a missing or invisible key is a no-op. Deleting an immutable item
	// owned by someone else returns ErrImmutable.
	Delete(ctx context.Context, key string, opts ...Option) error

	// Keys returns the sorted keys of every visible, non-expired item.
	Keys(ctx context.Context, opts ...Option) ([]string, error)

	// Cleanup removes all expired items from the store.
	//
	// Stores with native expiration treat this as a no-op.
	Cleanup(ctx context.Context) error

	// Ping reports whether the store can currently serve requests.
	//
	// A nil error means available. The probe is repeatable: availability may
	// change between calls.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
