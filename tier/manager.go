package tier

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/go-core-fx/tiercachefx/preset"
	"github.com/go-core-fx/tiercachefx/proxy"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Proxies holds the backing stores of the organization and session tiers.
	// A missing entry leaves that tier memory-only.
	Proxies map[Tier]proxy.Proxy
	// Configs overrides DefaultConfig per tier.
	Configs map[Tier]Config
	// Presets supplies configured default values. Nil means none.
	Presets *preset.Index
	Logger  *zap.Logger
}

// Manager hands out one Cache per tier for the current unit of work.
//
// Caches are built on first access and kept until Reset. Backing stores are
// shared across units of work and are only released by Close.
type Manager struct {
	presets *preset.Index
	logger  *zap.Logger

	mu      sync.Mutex
	proxies map[Tier]proxy.Proxy
	configs map[Tier]Config
	caches  map[Tier]*Cache
	unit    string
}

// NewManager returns a Manager with a fresh unit of work.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Presets == nil {
		opts.Presets = preset.NewIndex(nil, nil, opts.Logger)
	}

	configs := make(map[Tier]Config, len(Tiers))
	for _, t := range Tiers {
		configs[t] = DefaultConfig(t)
		if cfg, ok := opts.Configs[t]; ok {
			configs[t] = cfg
		}
	}

	proxies := make(map[Tier]proxy.Proxy, len(opts.Proxies))
	for t, p := range opts.Proxies {
		if t == Transaction || !t.Valid() {
			continue
		}
		proxies[t] = p
	}

	return &Manager{
		presets: opts.Presets,
		logger:  opts.Logger,

		proxies: proxies,
		configs: configs,
		caches:  make(map[Tier]*Cache, len(Tiers)),
		unit:    uuid.NewString(),
	}
}

// Transaction returns the process-local tier.
func (m *Manager) Transaction() *Cache {
	return m.mustCache(Transaction)
}

// Organization returns the shared durable tier.
func (m *Manager) Organization() *Cache {
	return m.mustCache(Organization)
}

// Session returns the session-scoped tier.
func (m *Manager) Session() *Cache {
	return m.mustCache(Session)
}

// Cache returns the cache of t, creating it on first access.
func (m *Manager) Cache(t Tier) (*Cache, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.caches[t]; ok {
		return c, nil
	}

	c := newCache(t, m.configs[t], m.proxies[t], m.presets, m.logger.With(zap.String("unit_of_work", m.unit)))
	m.caches[t] = c

	return c, nil
}

func (m *Manager) mustCache(t Tier) *Cache {
	c, err := m.Cache(t)
	if err != nil {
		panic(err)
	}
	return c
}

// SetProxy replaces the backing store of t, including on an existing cache.
// Intended for tests.
func (m *Manager) SetProxy(t Tier, p proxy.Proxy) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTier, t)
	}
	if t == Transaction {
		return ErrNoBackingStore
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.proxies[t] = p
	if c, ok := m.caches[t]; ok {
		c.mu.Lock()
		c.proxy = p
		c.mu.Unlock()
	}

	return nil
}

// Configure replaces the configuration of t, including on an existing cache.
// The configuration survives Reset.
func (m *Manager) Configure(t Tier, config Config) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownTier, t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.configs[t] = config
	if c, ok := m.caches[t]; ok {
		c.SetConfig(config)
	}

	return nil
}

// UnitOfWork returns the id of the current unit of work.
func (m *Manager) UnitOfWork() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unit
}

// Reset starts a new unit of work: overlays and the preset snapshot are
// dropped. Backing stores keep their contents.
func (m *Manager) Reset(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.unit
	m.caches = make(map[Tier]*Cache, len(Tiers))
	m.unit = uuid.NewString()
	m.presets.Reset()

	m.logger.Debug("unit of work reset",
		zap.String("previous", previous),
		zap.String("unit_of_work", m.unit),
	)
}

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// Cleanup asks every backing store that supports it to drop expired items.
// Overlays are not touched.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	proxies := make([]proxy.Proxy, 0, len(m.proxies))
	for _, t := range Tiers {
		if p, ok := m.proxies[t]; ok {
			proxies = append(proxies, p)
		}
	}
	m.mu.Unlock()

	var errs *multierror.Error
	for _, p := range proxies {
		c, ok := p.(cleaner)
		if !ok {
			continue
		}
		if err := c.Cleanup(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

// Close closes every backing store that implements io.Closer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs *multierror.Error
	for _, t := range Tiers {
		closer, ok := m.proxies[t].(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close %s store: %w", t, err))
		}
	}

	return errs.ErrorOrNil()
}
