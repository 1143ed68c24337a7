package tier

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/go-core-fx/tiercachefx/codec"
	"github.com/go-core-fx/tiercachefx/preset"
	"github.com/go-core-fx/tiercachefx/proxy"
)

// Cache is one logical tier.
//
// Every Cache owns its overlay, so writes to one tier are never observable from
// another, even while both are falling back to memory. Values read from the
// backing store or materialized from presets are memoized in the overlay for the
// rest of the unit of work.
type Cache struct {
	tier    Tier
	presets *preset.Index
	logger  *zap.Logger

	mu      sync.Mutex
	config  Config
	proxy   proxy.Proxy
	overlay map[string]any
	removed map[string]struct{}
}

func newCache(t Tier, config Config, p proxy.Proxy, presets *preset.Index, logger *zap.Logger) *Cache {
	return &Cache{
		tier:    t,
		presets: presets,
		logger:  logger.With(zap.Stringer("tier", t)),

		config:  config,
		proxy:   p,
		overlay: make(map[string]any),
		removed: make(map[string]struct{}),
	}
}

// Tier returns the scope this cache serves.
func (c *Cache) Tier() Tier {
	return c.tier
}

// Config returns the current tier configuration.
func (c *Cache) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.config
}

// SetConfig replaces the tier configuration. It applies to subsequent calls.
func (c *Cache) SetConfig(config Config) {
	c.mu.Lock()
	c.config = config
	c.mu.Unlock()
}

// IsImmutable reports whether removals are disabled for this tier.
func (c *Cache) IsImmutable() bool {
	return c.Config().Immutable
}

// IsAvailable reports the availability of the backing store. The transaction
// tier is always available; the answer is never affected by the fallback.
func (c *Cache) IsAvailable(ctx context.Context) bool {
	c.mu.Lock()
	p := c.proxy
	c.mu.Unlock()

	if c.tier == Transaction {
		return true
	}
	if p == nil {
		return false
	}

	return p.IsAvailable(ctx)
}

// Contains reports whether key resolves in the overlay, the backing store or
// the presets of this tier.
func (c *Cache) Contains(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.contains(ctx, key, c.backend(ctx))
}

// ContainsKeys runs Contains for every key independently.
//
// A key that fails to resolve is left out of the result and its error is
// joined into the returned error; the other keys are still answered.
func (c *Cache) ContainsKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs *multierror.Error
	result := make(map[string]bool, len(keys))
	for _, key := range keys {
		ok, err := c.contains(ctx, key, c.backend(ctx))
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		result[key] = ok
	}

	return result, errs.ErrorOrNil()
}

// Get resolves key from the overlay, then the backing store, then the presets.
//
// A stored nil is returned as (nil, nil). ErrKeyNotFound means no source has
// the key; use Contains when only the distinction matters.
func (c *Cache) Get(ctx context.Context, key string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.get(ctx, key, c.backend(ctx))
}

// GetAll resolves every key returned by Keys.
//
// Keys that fail to resolve are left out of the result and their errors are
// returned together with the values that did resolve.
func (c *Cache) GetAll(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.backend(ctx)
	keys, _, err := c.keys(ctx, p)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	result := make(map[string]any, len(keys))
	for _, key := range keys {
		value, err := c.get(ctx, key, p)
		if errors.Is(err, ErrKeyNotFound) {
			// expired in the store between listing and reading
			continue
		}
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		result[key] = value
	}

	return result, errs.ErrorOrNil()
}

// Keys returns the sorted union of overlay, store and preset keys.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, _, err := c.keys(ctx, c.backend(ctx))
	return keys, err
}

// Put writes value to the overlay and, when the store is available, through to
// the store with this tier's TTL, visibility and immutability.
//
// Store failures are logged and absorbed. A value the codec cannot encode is
// still kept in the overlay, and the encoding error is returned.
func (c *Cache) Put(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.put(ctx, key, value, c.backend(ctx))
}

// PutAll runs Put for every entry. There is no atomicity across keys: a
// failing entry does not stop the others, and all failures are returned together.
func (c *Cache) PutAll(ctx context.Context, values map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs *multierror.Error
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if err := c.put(ctx, key, values[key], c.backend(ctx)); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

// Remove deletes key from the overlay and the available store. It does
// nothing at all on an immutable tier.
func (c *Cache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Immutable {
		c.logger.Debug("remove ignored on immutable tier", zap.String("key", key))
		return nil
	}

	c.remove(ctx, key, c.backend(ctx))
	return nil
}

// RemoveKeys runs Remove for every key.
func (c *Cache) RemoveKeys(ctx context.Context, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Immutable {
		c.logger.Debug("remove ignored on immutable tier", zap.Strings("keys", keys))
		return nil
	}

	for _, key := range keys {
		c.remove(ctx, key, c.backend(ctx))
	}

	return nil
}

// RemoveAll removes every key this tier currently resolves. Store removes are
// issued only for keys the store listed.
func (c *Cache) RemoveAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Immutable {
		c.logger.Debug("remove all ignored on immutable tier")
		return nil
	}

	p := c.backend(ctx)
	keys, stored, err := c.keys(ctx, p)
	if err != nil {
		return err
	}

	for _, key := range keys {
		delete(c.overlay, key)
		c.removed[key] = struct{}{}
	}
	if p == nil {
		return nil
	}

	for _, key := range stored {
		if err := p.Remove(ctx, key); err != nil {
			c.storeFailed("remove", key, err)
		}
	}

	return nil
}

// backend returns the proxy when it is present and reports available, nil
// otherwise. It probes once per call; mu must be held.
func (c *Cache) backend(ctx context.Context) proxy.Proxy {
	if c.proxy == nil {
		return nil
	}
	if !c.proxy.IsAvailable(ctx) {
		c.logger.Debug("backing store unavailable, using overlay")
		return nil
	}

	return c.proxy
}

func (c *Cache) contains(ctx context.Context, key string, p proxy.Proxy) (bool, error) {
	if _, ok := c.overlay[key]; ok {
		return true, nil
	}

	if p != nil {
		ok, err := p.Contains(ctx, key)
		if err != nil {
			c.storeFailed("contains", key, err)
		} else if ok {
			return true, nil
		}
	}

	_, ok, err := c.preset(ctx, key)
	return ok, err
}

func (c *Cache) get(ctx context.Context, key string, p proxy.Proxy) (any, error) {
	if value, ok := c.overlay[key]; ok {
		return fromOverlay(value), nil
	}

	if p != nil {
		value, err := p.Get(ctx, key)
		switch {
		case err == nil:
			c.overlay[key] = toOverlay(value)
			return fromOverlay(value), nil
		case errors.Is(err, proxy.ErrKeyNotFound):
		default:
			c.storeFailed("get", key, err)
		}
	}

	value, ok, err := c.preset(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrKeyNotFound, key, c.tier)
	}

	return fromOverlay(value), nil
}

func (c *Cache) put(ctx context.Context, key string, value any, p proxy.Proxy) error {
	stored := toOverlay(value)
	c.overlay[key] = stored
	delete(c.removed, key)

	if p == nil {
		return nil
	}

	err := p.Put(ctx, key, stored, c.config.TTL, c.config.Visibility, c.config.Immutable)
	if errors.Is(err, codec.ErrUnknownType) || errors.Is(err, codec.ErrMalformed) {
		return fmt.Errorf("failed to write %q to %s store: %w", key, c.tier, err)
	}
	if err != nil {
		c.storeFailed("put", key, err)
	}

	return nil
}

func (c *Cache) remove(ctx context.Context, key string, p proxy.Proxy) {
	delete(c.overlay, key)
	c.removed[key] = struct{}{}

	if p == nil {
		return
	}
	if err := p.Remove(ctx, key); err != nil {
		c.storeFailed("remove", key, err)
	}
}

// preset materializes the preset for key into the overlay. Keys removed during
// this unit of work stay removed until written again.
func (c *Cache) preset(ctx context.Context, key string) (any, bool, error) {
	if _, ok := c.removed[key]; ok {
		return nil, false, nil
	}

	value, ok, err := c.presets.Lookup(ctx, c.config.Identity, key)
	if err != nil || !ok {
		return nil, false, err
	}

	stored := toOverlay(value)
	c.overlay[key] = stored
	c.logger.Debug("preset materialized", zap.String("key", key))

	return stored, true, nil
}

// keys returns the sorted union of all sources, plus the keys listed by the store.
func (c *Cache) keys(ctx context.Context, p proxy.Proxy) ([]string, []string, error) {
	set := make(map[string]struct{}, len(c.overlay))
	for key := range c.overlay {
		set[key] = struct{}{}
	}

	var stored []string
	if p != nil {
		list, err := p.Keys(ctx)
		if err != nil {
			c.storeFailed("keys", "", err)
		}
		for _, key := range list {
			set[key] = struct{}{}
		}
		stored = list
	}

	configured, err := c.presets.Keys(ctx, c.config.Identity)
	if err != nil {
		return nil, nil, err
	}
	for _, key := range configured {
		if _, ok := c.removed[key]; !ok {
			set[key] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(set)), stored, nil
}

func (c *Cache) storeFailed(op, key string, err error) {
	c.logger.Warn("backing store call failed, using overlay",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func toOverlay(value any) any {
	if value == nil {
		return proxy.Null
	}
	return value
}

func fromOverlay(value any) any {
	if proxy.IsNull(value) {
		return nil
	}
	return value
}
