package tiercachefx

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/go-core-fx/tiercachefx/cache"
	"github.com/go-core-fx/tiercachefx/tier"
)

// Config holds the tier cache configuration loaded from environment variables.
type Config struct {
	// URL selects the shared store: memory://, redis://host:port/db or bbolt:///path/file.db.
	URL string `envconfig:"CACHE_URL" default:"memory://"`
	// Namespace prefixes every store partition and owns the items written to it.
	Namespace string `envconfig:"CACHE_NAMESPACE" default:"tiercache"`
	// PresetsFile is a YAML preset file, or "env:NAME" to read it from a variable.
	PresetsFile string `envconfig:"CACHE_PRESETS_FILE" default:""`
	// CleanupInterval is how often expired items are dropped from the memory
	// and bbolt stores. Zero disables the cleanup.
	CleanupInterval time.Duration `envconfig:"CACHE_CLEANUP_INTERVAL" default:"1m"`

	Transaction  TierSettings `envconfig:"CACHE_TX"`
	Organization TierSettings `envconfig:"CACHE_ORG"`
	Session      TierSettings `envconfig:"CACHE_SESSION"`
}

// TierSettings overrides the defaults of one tier. Zero values keep the default.
type TierSettings struct {
	Identity   string           `envconfig:"IDENTITY" default:""`
	TTL        time.Duration    `envconfig:"TTL" default:"0"`
	Visibility cache.Visibility `envconfig:"VISIBILITY" default:"shared"`
	Immutable  bool             `envconfig:"IMMUTABLE" default:"false"`
}

func (s TierSettings) apply(cfg tier.Config) tier.Config {
	if s.Identity != "" {
		cfg.Identity = s.Identity
	}
	if s.TTL > 0 {
		cfg.TTL = s.TTL
	}
	cfg.Visibility = s.Visibility
	cfg.Immutable = s.Immutable

	return cfg
}

// TierConfigs returns the effective configuration of every tier.
func (c Config) TierConfigs() map[tier.Tier]tier.Config {
	return map[tier.Tier]tier.Config{
		tier.Transaction:  c.Transaction.apply(tier.DefaultConfig(tier.Transaction)),
		tier.Organization: c.Organization.apply(tier.DefaultConfig(tier.Organization)),
		tier.Session:      c.Session.apply(tier.DefaultConfig(tier.Session)),
	}
}

// Validate checks the configuration without connecting to anything.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidConfig)
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("%w: failed to parse url: %w", ErrInvalidConfig, err)
		}
		switch u.Scheme {
		case schemeMemory, schemeRedis, schemeBbolt:
		default:
			return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, u.Scheme)
		}
	}

	if c.CleanupInterval < 0 {
		return fmt.Errorf("%w: negative cleanup interval", ErrInvalidConfig)
	}

	settings := map[tier.Tier]TierSettings{
		tier.Transaction:  c.Transaction,
		tier.Organization: c.Organization,
		tier.Session:      c.Session,
	}
	configs := c.TierConfigs()

	seen := make(map[string]tier.Tier, len(tier.Tiers))
	for _, t := range tier.Tiers {
		if settings[t].TTL < 0 {
			return fmt.Errorf("%w: negative ttl for %s", ErrInvalidConfig, t)
		}

		cfg := configs[t]
		if other, dup := seen[cfg.Identity]; dup {
			return fmt.Errorf("%w: %s and %s share identity %q", ErrInvalidConfig, other, t, cfg.Identity)
		}
		seen[cfg.Identity] = t
	}

	return nil
}

// LoadConfig reads configuration from environment variables. A .env file in
// the working directory is loaded first when present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MustLoadConfig loads configuration or panics on error.
func MustLoadConfig() Config {
	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return cfg
}
