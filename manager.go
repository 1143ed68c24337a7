package tiercachefx

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/go-core-fx/tiercachefx/codec"
	"github.com/go-core-fx/tiercachefx/preset"
	"github.com/go-core-fx/tiercachefx/proxy"
	"github.com/go-core-fx/tiercachefx/tier"
)

// NewPresetSource returns the preset source named by config.PresetsFile, or an
// empty static source when none is configured.
func NewPresetSource(config Config) preset.Source {
	if config.PresetsFile == "" {
		return preset.NewStaticSource()
	}

	return preset.NewFileSource(config.PresetsFile)
}

// NewManager builds the tier manager.
//
// The organization and session tiers each get a store partition named
// "<namespace>:<tier>", written on behalf of config.Namespace.
func NewManager(
	config Config,
	factory Factory,
	registry *codec.Registry,
	source preset.Source,
	logger *zap.Logger,
) (*tier.Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	named := factory.WithName(config.Namespace)
	proxies := make(map[tier.Tier]proxy.Proxy, 2)
	for _, t := range []tier.Tier{tier.Organization, tier.Session} {
		store, err := named.New(t.String())
		if err != nil {
			return nil, closeOnError(proxies, fmt.Errorf("failed to create %s store: %w", t, err))
		}

		proxies[t] = proxy.NewStore(proxy.StoreConfig{
			Name:  config.Namespace + ":" + t.String(),
			Owner: config.Namespace,
			Store: store,
			Codec: registry,
		}, logger)
	}

	logger.Info("tier cache configured",
		zap.String("namespace", config.Namespace),
		zap.Bool("presets", config.PresetsFile != ""),
	)

	return tier.NewManager(tier.ManagerOptions{
		Proxies: proxies,
		Configs: config.TierConfigs(),
		Presets: preset.NewIndex(source, registry, logger),
		Logger:  logger,
	}), nil
}

func closeOnError(proxies map[tier.Tier]proxy.Proxy, err error) error {
	errs := multierror.Append(nil, err)
	for _, p := range proxies {
		if store, ok := p.(*proxy.StoreProxy); ok {
			if closeErr := store.Close(); closeErr != nil {
				errs = multierror.Append(errs, closeErr)
			}
		}
	}

	return errs.ErrorOrNil()
}
