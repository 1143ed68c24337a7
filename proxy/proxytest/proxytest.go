// Package proxytest provides proxy.Proxy doubles for tests.
//
// Mock is a testify mock for exact expectation setups. Fake is a stateful
// in-memory partition that counts calls per method and can be switched
// unavailable at any time.
package proxytest

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/go-core-fx/tiercachefx/cache"
	"github.com/go-core-fx/tiercachefx/proxy"
)

// ErrUnavailable is returned by Fake operations while it is unavailable.
var ErrUnavailable = errors.New("partition unavailable")

// Method names as reported by Fake.Calls and used with Mock.On.
const (
	MethodIsAvailable = "IsAvailable"
	MethodContains    = "Contains"
	MethodGet         = "Get"
	MethodPut         = "Put"
	MethodRemove      = "Remove"
	MethodKeys        = "Keys"
	MethodCleanup     = "Cleanup"
)

// Mock is a testify mock of proxy.Proxy.
type Mock struct {
	mock.Mock
}

func (m *Mock) IsAvailable(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *Mock) Contains(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *Mock) Get(ctx context.Context, key string) (any, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Error(1)
}

func (m *Mock) Put(
	ctx context.Context,
	key string,
	value any,
	ttl time.Duration,
	visibility cache.Visibility,
	immutable bool,
) error {
	return m.Called(ctx, key, value, ttl, visibility, immutable).Error(0)
}

func (m *Mock) Remove(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *Mock) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Write records the parameters of one Fake.Put call.
type Write struct {
	Value      any
	TTL        time.Duration
	Visibility cache.Visibility
	Immutable  bool
}

// Fake is an in-memory proxy.Proxy that counts its calls.
type Fake struct {
	mu        sync.Mutex
	available bool
	items     map[string]Write
	calls     map[string]int
}

// NewFake returns an available, empty Fake.
func NewFake() *Fake {
	return &Fake{
		available: true,
		items:     make(map[string]Write),
		calls:     make(map[string]int),
	}
}

// SetAvailable switches the partition on or off.
func (f *Fake) SetAvailable(available bool) {
	f.mu.Lock()
	f.available = available
	f.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[method]
}

// ResetCalls zeroes every call counter.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	clear(f.calls)
	f.mu.Unlock()
}

// Stored returns the last write for key without counting a call.
func (f *Fake) Stored(key string) (Write, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.items[key]
	return w, ok
}

// Seed writes value directly, without counting a call.
func (f *Fake) Seed(key string, value any) {
	f.mu.Lock()
	f.items[key] = Write{Value: value}
	f.mu.Unlock()
}

func (f *Fake) IsAvailable(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodIsAvailable]++
	return f.available
}

func (f *Fake) Contains(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodContains]++
	if !f.available {
		return false, ErrUnavailable
	}

	_, ok := f.items[key]
	return ok, nil
}

func (f *Fake) Get(_ context.Context, key string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodGet]++
	if !f.available {
		return nil, ErrUnavailable
	}

	w, ok := f.items[key]
	if !ok {
		return nil, proxy.ErrKeyNotFound
	}

	return w.Value, nil
}

func (f *Fake) Put(
	_ context.Context,
	key string,
	value any,
	ttl time.Duration,
	visibility cache.Visibility,
	immutable bool,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodPut]++
	if !f.available {
		return ErrUnavailable
	}

	f.items[key] = Write{Value: value, TTL: ttl, Visibility: visibility, Immutable: immutable}
	return nil
}

func (f *Fake) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodRemove]++
	if !f.available {
		return ErrUnavailable
	}

	delete(f.items, key)
	return nil
}

func (f *Fake) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodKeys]++
	if !f.available {
		return nil, ErrUnavailable
	}

	return slices.Sorted(maps.Keys(f.items)), nil
}

// Cleanup only counts the call; Fake items never expire.
func (f *Fake) Cleanup(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[MethodCleanup]++
	if !f.available {
		return ErrUnavailable
	}

	return nil
}

var (
	_ proxy.Proxy = (*Mock)(nil)
	_ proxy.Proxy = (*Fake)(nil)
)
