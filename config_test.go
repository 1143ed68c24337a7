package tiercachefx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-core-fx/tiercachefx"
	"github.com/go-core-fx/tiercachefx/cache"
	"github.com/go-core-fx/tiercachefx/tier"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := tiercachefx.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory://", cfg.URL)
	assert.Equal(t, "tiercache", cfg.Namespace)
	assert.Empty(t, cfg.PresetsFile)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)

	configs := cfg.TierConfigs()
	for _, tr := range tier.Tiers {
		assert.Equal(t, tier.DefaultConfig(tr), configs[tr], tr.String())
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_URL", "redis://localhost:6379/2")
	t.Setenv("CACHE_NAMESPACE", "billing")
	t.Setenv("CACHE_PRESETS_FILE", "env:BILLING_PRESETS")
	t.Setenv("CACHE_CLEANUP_INTERVAL", "30s")
	t.Setenv("CACHE_ORG_TTL", "2h")
	t.Setenv("CACHE_ORG_IMMUTABLE", "true")
	t.Setenv("CACHE_ORG_IDENTITY", "00D-billing")
	t.Setenv("CACHE_SESSION_VISIBILITY", "isolated")

	cfg, err := tiercachefx.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379/2", cfg.URL)
	assert.Equal(t, "billing", cfg.Namespace)
	assert.Equal(t, "env:BILLING_PRESETS", cfg.PresetsFile)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)

	configs := cfg.TierConfigs()
	assert.Equal(t, tier.Config{
		Identity:   "00D-billing",
		Immutable:  true,
		TTL:        2 * time.Hour,
		Visibility: cache.VisibilityShared,
	}, configs[tier.Organization])
	assert.Equal(t, cache.VisibilityIsolated, configs[tier.Session].Visibility)
	assert.Equal(t, 8*time.Hour, configs[tier.Session].TTL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_SESSION_VISIBILITY", "everyone")

	_, err := tiercachefx.LoadConfig()
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := tiercachefx.Config{URL: "memory://", Namespace: "app"}

	tests := []struct {
		name   string
		mutate func(*tiercachefx.Config)
	}{
		{name: "empty namespace", mutate: func(c *tiercachefx.Config) { c.Namespace = "" }},
		{name: "unknown scheme", mutate: func(c *tiercachefx.Config) { c.URL = "memcached://localhost" }},
		{name: "negative cleanup interval", mutate: func(c *tiercachefx.Config) { c.CleanupInterval = -time.Second }},
		{name: "negative ttl", mutate: func(c *tiercachefx.Config) { c.Session.TTL = -time.Second }},
		{name: "shared identity", mutate: func(c *tiercachefx.Config) {
			c.Organization.Identity = "session"
		}},
	}

	require.NoError(t, valid.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), tiercachefx.ErrInvalidConfig)
		})
	}
}
