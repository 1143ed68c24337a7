// Package proxy defines the boundary between tier caches and the physical stores behind them.
//
// Tier caches only see the Proxy interface, so tests can substitute a double
// (see package proxytest) without touching orchestration code. StoreProxy is the
// production implementation over a cache.Cache.
package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/go-core-fx/tiercachefx/cache"
)

// ErrKeyNotFound is returned by Get when the partition has no value for the key.
var ErrKeyNotFound = errors.New("key not found")

// NullValue is the type of Null.
type NullValue struct{}

// Null stands in for an explicitly stored nil. It exists only at the store
// boundary; tier caches translate it back to nil before returning values.
var Null = NullValue{}

// IsNull reports whether v is the Null sentinel.
func IsNull(v any) bool {
	_, ok := v.(NullValue)
	return ok
}

// Proxy is the capability set of one shared cache partition.
//
// Implementations must perform exactly one underlying operation per call; call
// counts are observable by tests.
type Proxy interface {
	// IsAvailable probes the partition. The answer may change between calls.
	IsAvailable(ctx context.Context) bool
	// Contains reports whether the partition holds a value for key.
	Contains(ctx context.Context, key string) (bool, error)
	// Get returns the stored value, Null, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (any, error)
	// Put stores value (or Null) with the owning tier's write parameters.
	Put(ctx context.Context, key string, value any, ttl time.Duration, visibility cache.Visibility, immutable bool) error
	// Remove deletes the value for key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists every key of the partition visible to this proxy.
	Keys(ctx context.Context) ([]string, error)
}
