package tier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/go-core-fx/tiercachefx/preset"
	"github.com/go-core-fx/tiercachefx/proxy"
	"github.com/go-core-fx/tiercachefx/proxy/proxytest"
	"github.com/go-core-fx/tiercachefx/tier"
)

type closingFake struct {
	*proxytest.Fake
	err    error
	closed bool
}

func (c *closingFake) Close() error {
	c.closed = true
	return c.err
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    tier.Tier
		wantErr bool
	}{
		{in: "transaction", want: tier.Transaction},
		{in: "TX", want: tier.Transaction},
		{in: "organization", want: tier.Organization},
		{in: " org ", want: tier.Organization},
		{in: "Session", want: tier.Session},
		{in: "global", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := tier.ParseTier(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, tier.ErrUnknownTier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	for _, tr := range tier.Tiers {
		cfg := tier.DefaultConfig(tr)
		assert.Equal(t, tr.String(), cfg.Identity)
		assert.False(t, cfg.Immutable)
	}

	assert.Zero(t, tier.DefaultConfig(tier.Transaction).TTL)
	assert.Positive(t, tier.DefaultConfig(tier.Organization).TTL)
	assert.Positive(t, tier.DefaultConfig(tier.Session).TTL)
}

func TestManager_Singletons(t *testing.T) {
	m := newFixture(t).manager

	assert.Same(t, m.Transaction(), m.Transaction())
	assert.Same(t, m.Organization(), m.Organization())
	assert.Same(t, m.Session(), m.Session())
	assert.NotSame(t, m.Organization(), m.Session())

	c, err := m.Cache(tier.Session)
	require.NoError(t, err)
	assert.Same(t, m.Session(), c)
	assert.Equal(t, tier.Session, c.Tier())
}

func TestManager_UnknownTier(t *testing.T) {
	m := newFixture(t).manager

	_, err := m.Cache(tier.Tier(7))
	require.ErrorIs(t, err, tier.ErrUnknownTier)

	require.ErrorIs(t, m.SetProxy(tier.Tier(-1), proxytest.NewFake()), tier.ErrUnknownTier)
	require.ErrorIs(t, m.Configure(tier.Tier(3), tier.Config{}), tier.ErrUnknownTier)
}

func TestManager_SetProxy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.manager.Organization()

	require.ErrorIs(t, f.manager.SetProxy(tier.Transaction, proxytest.NewFake()), tier.ErrNoBackingStore)

	replacement := proxytest.NewFake()
	require.NoError(t, f.manager.SetProxy(tier.Organization, replacement))

	require.NoError(t, c.Put(ctx, "k", "v"))

	assert.Equal(t, 1, replacement.Calls(proxytest.MethodPut))
	assert.Zero(t, f.org.Calls(proxytest.MethodPut))

	require.NoError(t, f.manager.SetProxy(tier.Organization, nil))
	assert.False(t, c.IsAvailable(ctx))
}

func TestManager_Configure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.manager.Session()
	require.NoError(t, c.Put(ctx, "k", "v"))

	cfg := tier.DefaultConfig(tier.Session)
	cfg.Immutable = true
	require.NoError(t, f.manager.Configure(tier.Session, cfg))

	assert.True(t, c.IsImmutable())
	require.NoError(t, c.Remove(ctx, "k"))

	ok, err := c.Contains(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	f.manager.Reset(ctx)
	assert.True(t, f.manager.Session().IsImmutable(), "configuration survives reset")
}

func TestManager_Reset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.manager.Transaction()
	unit := f.manager.UnitOfWork()

	require.NoError(t, before.Put(ctx, "tx", 1))
	require.NoError(t, f.manager.Organization().Put(ctx, "org", 2))

	f.manager.Reset(ctx)

	assert.NotEqual(t, unit, f.manager.UnitOfWork())
	assert.NotSame(t, before, f.manager.Transaction())

	ok, err := f.manager.Transaction().Contains(ctx, "tx")
	require.NoError(t, err)
	assert.False(t, ok, "transaction overlay must not leak into the next unit of work")

	got, err := f.manager.Organization().Get(ctx, "org")
	require.NoError(t, err)
	assert.Equal(t, 2, got, "shared store keeps its contents")
}

func TestManager_ResetRefreshesPresets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.manager.Transaction().Contains(ctx, "K")
	require.NoError(t, err)
	assert.False(t, ok)

	f.source.Append(preset.Entry{Tier: "transaction", Key: "K", Value: "1", Type: "int", Enabled: true})

	ok, err = f.manager.Transaction().Contains(ctx, "K")
	require.NoError(t, err)
	assert.False(t, ok, "preset snapshot is kept for the unit of work")

	f.manager.Reset(ctx)

	ok, err = f.manager.Transaction().Contains(ctx, "K")
	require.NoError(t, err)
	assert.True(t, ok)

	f.source.Clear()
	f.manager.Reset(ctx)

	ok, err = f.manager.Transaction().Contains(ctx, "K")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Close(t *testing.T) {
	errOrg := errors.New("org close failed")
	errSession := errors.New("session close failed")
	org := &closingFake{Fake: proxytest.NewFake(), err: errOrg}
	session := &closingFake{Fake: proxytest.NewFake(), err: errSession}

	m := tier.NewManager(tier.ManagerOptions{
		Proxies: map[tier.Tier]proxy.Proxy{
			tier.Organization: org,
			tier.Session:      session,
		},
		Logger: zaptest.NewLogger(t),
	})

	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), errOrg.Error())
	assert.Contains(t, err.Error(), errSession.Error())
	assert.True(t, org.closed)
	assert.True(t, session.closed)

	org.err, session.err = nil, nil
	require.NoError(t, m.Close())
}

func TestManager_TransactionProxyIgnored(t *testing.T) {
	ctx := context.Background()
	fake := proxytest.NewFake()
	m := tier.NewManager(tier.ManagerOptions{
		Proxies: map[tier.Tier]proxy.Proxy{tier.Transaction: fake},
	})

	require.NoError(t, m.Transaction().Put(ctx, "k", "v"))
	assert.Zero(t, fake.Calls(proxytest.MethodPut))
}

func TestManager_Cleanup(t *testing.T) {
	ctx := context.Background()
	org := proxytest.NewFake()
	session := proxytest.NewFake()
	session.SetAvailable(false)

	m := tier.NewManager(tier.ManagerOptions{
		Proxies: map[tier.Tier]proxy.Proxy{
			tier.Organization: org,
			tier.Session:      session,
		},
		Logger: zaptest.NewLogger(t),
	})

	require.ErrorIs(t, m.Cleanup(ctx), proxytest.ErrUnavailable)
	assert.Equal(t, 1, org.Calls(proxytest.MethodCleanup))
	assert.Equal(t, 1, session.Calls(proxytest.MethodCleanup), "a failing store does not stop the others")

	// stores without Cleanup are skipped
	require.NoError(t, m.SetProxy(tier.Session, new(proxytest.Mock)))
	require.NoError(t, m.Cleanup(ctx))
	assert.Equal(t, 2, org.Calls(proxytest.MethodCleanup))
}
