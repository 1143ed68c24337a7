package preset

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/go-core-fx/tiercachefx/codec"
)

type indexKey struct {
	tier string
	key  string
}

// Index is a lazily built snapshot of the enabled entries of a Source.
//
// The snapshot is taken on first access and kept until Reset. When several
// enabled entries target the same (tier, key), the first one in declared order
// wins and the rest are logged and ignored.
type Index struct {
	source Source
	codec  *codec.Registry
	logger *zap.Logger

	mu      sync.Mutex
	built   bool
	entries map[indexKey]Entry
	keys    map[string][]string
}

// NewIndex returns an index over source. A nil source yields an empty index.
func NewIndex(source Source, registry *codec.Registry, logger *zap.Logger) *Index {
	if source == nil {
		source = NewStaticSource()
	}
	if registry == nil {
		registry = codec.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Index{
		source: source,
		codec:  registry,
		logger: logger,
	}
}

// Reset drops the snapshot; the next access reads the source again.
func (i *Index) Reset() {
	i.mu.Lock()
	i.built = false
	i.entries = nil
	i.keys = nil
	i.mu.Unlock()
}

// Lookup decodes the entry for (tier, key).
//
// ok is false when no enabled entry exists. A payload that cannot be decoded is
// a configuration defect and is reported as ErrInvalidPreset.
func (i *Index) Lookup(ctx context.Context, tier, key string) (any, bool, error) {
	e, ok, err := i.entry(ctx, tier, key)
	if err != nil || !ok {
		return nil, false, err
	}

	value, err := i.codec.DecodeString(e.Type, e.Value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: tier %q key %q: %w", ErrInvalidPreset, tier, key, err)
	}

	return value, true, nil
}

// Keys returns the keys configured for tier in declared order.
func (i *Index) Keys(ctx context.Context, tier string) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.build(ctx); err != nil {
		return nil, err
	}

	return slices.Clone(i.keys[tier]), nil
}

func (i *Index) entry(ctx context.Context, tier, key string) (Entry, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.build(ctx); err != nil {
		return Entry{}, false, err
	}

	e, ok := i.entries[indexKey{tier: tier, key: key}]
	return e, ok, nil
}

// build must be called with mu held.
func (i *Index) build(ctx context.Context) error {
	if i.built {
		return nil
	}

	list, err := i.source.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load preset entries: %w", err)
	}

	entries := make(map[indexKey]Entry, len(list))
	keys := make(map[string][]string)
	for _, e := range list {
		if !e.Enabled {
			continue
		}

		k := indexKey{tier: e.Tier, key: e.Key}
		if _, dup := entries[k]; dup {
			i.logger.Warn("duplicate preset entry ignored",
				zap.String("tier", e.Tier),
				zap.String("key", e.Key),
			)
			continue
		}

		entries[k] = e
		keys[e.Tier] = append(keys[e.Tier], e.Key)
	}

	i.entries = entries
	i.keys = keys
	i.built = true

	i.logger.Debug("preset index built", zap.Int("entries", len(entries)))
	return nil
}
