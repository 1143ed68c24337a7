// Package tiercachefx wires the tier cache into an fx application.
//
// The module expects a Config and a *zap.Logger in the container and provides
// the store Factory, the codec Registry, the preset Source and the
// *tier.Manager. While the application runs, expired items are periodically
// dropped from the stores every Config.CleanupInterval. Applications register their value types on the Registry from
// an fx.Invoke before the first write.
package tiercachefx

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/go-core-fx/tiercachefx/codec"
	"github.com/go-core-fx/tiercachefx/tier"
)

func Module() fx.Option {
	return fx.Module(
		"tiercachefx",
		fx.Decorate(func(log *zap.Logger) *zap.Logger {
			return log.Named("tiercachefx")
		}),
		fx.Provide(
			NewFactory,
			codec.NewRegistry,
			NewPresetSource,
			NewManager,
		),
		fx.Invoke(func(lc fx.Lifecycle, config Config, manager *tier.Manager, factory Factory, logger *zap.Logger) {
			janitor := NewJanitor(manager, config.CleanupInterval, logger)

			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					janitor.Start()
					return nil
				},
				OnStop: func(_ context.Context) error {
					janitor.Stop()

					var errs *multierror.Error
					if err := manager.Close(); err != nil {
						errs = multierror.Append(errs, err)
					}
					if err := factory.Close(); err != nil {
						errs = multierror.Append(errs, err)
					}
					return errs.ErrorOrNil()
				},
			})
		}),
	)
}
