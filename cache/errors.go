package cache

import "errors"

var (
	// ErrInvalidConfig indicates an invalid configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrKeyNotFound indicates no value exists for the given key.
	//
	// This error is returned by Get operations when the requested key has never been
	// set, has been explicitly deleted, or belongs to another owner and was stored
	// with isolated visibility.
	//
	// Example:
	//	_, err := store.Get(ctx, "nonexistent-key")
	//	if errors.Is(err, cache.ErrKeyNotFound) {
	//	    // Handle missing key
	//	}
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExpired indicates the key exists but its TTL has elapsed.
	ErrKeyExpired = errors.New("key expired")

	// ErrImmutable indicates an attempt to overwrite or delete an immutable item
	// that was written by a different owner.
	ErrImmutable = errors.New("item is immutable")

	// ErrCacheClosed is returned when an operation is attempted on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)
