package cache

import (
	"fmt"
	"strings"
	"time"
)

// Visibility controls which owners may read an item.
type Visibility int

const (
	// VisibilityShared items are readable by every owner of the partition.
	VisibilityShared Visibility = iota
	// VisibilityIsolated items are readable only by the owner that wrote them.
	VisibilityIsolated
)

// String implements fmt.Stringer.
func (v Visibility) String() string {
	switch v {
	case VisibilityShared:
		return "shared"
	case VisibilityIsolated:
		return "isolated"
	default:
		return fmt.Sprintf("Visibility(%d)", int(v))
	}
}

// ParseVisibility converts "shared" or "isolated" (case-insensitive) to a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared", "all":
		return VisibilityShared, nil
	case "isolated", "namespace":
		return VisibilityIsolated, nil
	default:
		return VisibilityShared, fmt.Errorf("%w: unknown visibility %q", ErrInvalidConfig, s)
	}
}

// Decode lets envconfig populate Visibility fields from the environment.
func (v *Visibility) Decode(value string) error {
	parsed, err := ParseVisibility(value)
	if err != nil {
		return err
	}

	*v = parsed
	return nil
}

// Option configures per-call cache behavior.
//
// Write options (TTL, visibility, immutability) are used with Set. The owner
// option applies to every operation: it decides which isolated items are visible
// and which immutable items may be replaced or deleted.
type Option func(*options)

// options holds the configuration for a cache call.
type options struct {
	validUntil time.Time
	owner      string
	visibility Visibility
	immutable  bool
}

// apply applies the given options to this options struct.
func (o *options) apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

func newOptions(defaultTTL time.Duration, opts ...Option) options {
	o := options{}
	if defaultTTL > 0 {
		o.validUntil = time.Now().Add(defaultTTL)
	}
	o.apply(opts...)

	return o
}

// WithTTL sets the TTL (time to live) for an item.
//
// The item will expire after the given duration from the time of insertion.
// A TTL of zero means the item will not expire.
// A negative TTL means the item expires immediately.
//
// Example:
//
//	// Set a value that expires in 30 minutes
//	err := store.Set(ctx, "session:abc", []byte("data"), cache.WithTTL(30*time.Minute))
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		switch {
		case ttl == 0:
			o.validUntil = time.Time{}
		case ttl < 0:
			o.validUntil = time.Now()
		default:
			o.validUntil = time.Now().Add(ttl)
		}
	}
}

// WithValidUntil sets the exact expiration time for an item.
func WithValidUntil(validUntil time.Time) Option {
	return func(o *options) {
		o.validUntil = validUntil
	}
}

// WithOwner sets the namespace performing the call.
func WithOwner(owner string) Option {
	return func(o *options) {
		o.owner = owner
	}
}

// WithVisibility sets which owners may read the written item.
func WithVisibility(v Visibility) Option {
	return func(o *options) {
		o.visibility = v
	}
}

// WithImmutable marks the written item as protected from other owners.
//
// An immutable item can still be replaced or deleted by the owner that wrote it.
func WithImmutable(immutable bool) Option {
	return func(o *options) {
		o.immutable = immutable
	}
}
