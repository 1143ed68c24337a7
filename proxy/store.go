package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/go-core-fx/tiercachefx/cache"
	"github.com/go-core-fx/tiercachefx/codec"
)

// nullPayload is how Null is written to a store. Encoded values are JSON
// envelopes, so this byte sequence can never collide with one.
var nullPayload = []byte("\x00null\x00")

// StoreProxy adapts a cache.Cache partition to the Proxy interface.
//
// Values are encoded with a codec.Registry; every call is made on behalf of the
// configured owner namespace.
type StoreProxy struct {
	name  string
	owner string
	store cache.Cache
	codec *codec.Registry

	logger *zap.Logger
}

// StoreConfig configures a StoreProxy.
type StoreConfig struct {
	// Name identifies the partition in logs.
	Name string
	// Owner is the namespace used for visibility and immutability checks.
	Owner string
	Store cache.Cache
	Codec *codec.Registry
}

// NewStore returns a proxy over config.Store.
func NewStore(config StoreConfig, logger *zap.Logger) *StoreProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Codec == nil {
		config.Codec = codec.NewRegistry()
	}

	return &StoreProxy{
		name:  config.Name,
		owner: config.Owner,
		store: config.Store,
		codec: config.Codec,

		logger: logger.With(zap.String("partition", config.Name)),
	}
}

// Name returns the partition name.
func (p *StoreProxy) Name() string {
	return p.name
}

// IsAvailable implements Proxy.
func (p *StoreProxy) IsAvailable(ctx context.Context) bool {
	if err := p.store.Ping(ctx); err != nil {
		p.logger.Debug("store unavailable", zap.Error(err))
		return false
	}

	return true
}

// Contains implements Proxy.
func (p *StoreProxy) Contains(ctx context.Context, key string) (bool, error) {
	ok, err := p.store.Has(ctx, key, cache.WithOwner(p.owner))
	if err != nil {
		return false, fmt.Errorf("failed to check %q in %s: %w", key, p.name, err)
	}

	return ok, nil
}

// Get implements Proxy.
func (p *StoreProxy) Get(ctx context.Context, key string) (any, error) {
	data, err := p.store.Get(ctx, key, cache.WithOwner(p.owner))
	if errors.Is(err, cache.ErrKeyNotFound) || errors.Is(err, cache.ErrKeyExpired) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q from %s: %w", key, p.name, err)
	}

	if bytes.Equal(data, nullPayload) {
		return Null, nil
	}

	value, err := p.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q from %s: %w", key, p.name, err)
	}

	return value, nil
}

// Put implements Proxy.
//
// A zero ttl keeps the store's default expiration.
func (p *StoreProxy) Put(
	ctx context.Context,
	key string,
	value any,
	ttl time.Duration,
	visibility cache.Visibility,
	immutable bool,
) error {
	data := nullPayload
	if !IsNull(value) {
		encoded, err := p.codec.Encode(value)
		if err != nil {
			return fmt.Errorf("failed to encode %q: %w", key, err)
		}
		data = encoded
	}

	opts := []cache.Option{
		cache.WithOwner(p.owner),
		cache.WithVisibility(visibility),
		cache.WithImmutable(immutable),
	}
	if ttl > 0 {
		opts = append(opts, cache.WithTTL(ttl))
	}

	if err := p.store.Set(ctx, key, data, opts...); err != nil {
		return fmt.Errorf("failed to put %q into %s: %w", key, p.name, err)
	}

	return nil
}

// Remove implements Proxy.
func (p *StoreProxy) Remove(ctx context.Context, key string) error {
	if err := p.store.Delete(ctx, key, cache.WithOwner(p.owner)); err != nil {
		return fmt.Errorf("failed to remove %q from %s: %w", key, p.name, err)
	}

	return nil
}

// Keys implements Proxy.
func (p *StoreProxy) Keys(ctx context.Context) ([]string, error) {
	keys, err := p.store.Keys(ctx, cache.WithOwner(p.owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys of %s: %w", p.name, err)
	}

	return keys, nil
}

// Cleanup removes expired items from the underlying store.
func (p *StoreProxy) Cleanup(ctx context.Context) error {
	if err := p.store.Cleanup(ctx); err != nil {
		return fmt.Errorf("failed to clean up %s: %w", p.name, err)
	}

	return nil
}

// Close closes the underlying store.
func (p *StoreProxy) Close() error {
	return p.store.Close()
}

var _ Proxy = (*StoreProxy)(nil)
