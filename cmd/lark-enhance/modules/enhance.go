package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/lark-enhance/internal/channel/adapters/feishu"
	"github.com/memohai/lark-enhance/internal/config"
	"github.com/memohai/lark-enhance/internal/enhance"
	"github.com/memohai/lark-enhance/internal/plugin"
)

var EnhanceModule = fx.Module(
	"enhance",
	fx.Provide(
		provideEnhancer,
		provideNormalizer,
		providePluginHost,
	),
	fx.Invoke(startPluginHost),
)

func provideEnhancer(log *slog.Logger, cfg config.Config, fetcher enhance.Fetcher) *enhance.Enhancer {
	return enhance.NewEnhancer(log, fetcher, cfg.Enhance.Phrases())
}

func provideNormalizer(cfg config.Config) *enhance.Normalizer {
	return enhance.NewNormalizer(cfg.Enhance.NormalizerConfig())
}

func providePluginHost(log *slog.Logger, cfg config.Config, enhancer *enhance.Enhancer, normalizer *enhance.Normalizer) (*plugin.Host, error) {
	host := plugin.NewHost(log)
	p := enhance.NewPlugin(log, enhance.PluginOptions{
		Target:        feishu.Type,
		ForwardQuotes: cfg.Enhance.ForwardQuotes,
	}, enhancer, normalizer)
	if err := host.Register(p); err != nil {
		return nil, err
	}
	return host, nil
}

func startPluginHost(lc fx.Lifecycle, log *slog.Logger, host *plugin.Host) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := host.Initialize(ctx); err != nil {
				return err
			}
			log.Info("plugins initialized", slog.Any("plugins", host.Plugins()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return host.Shutdown(ctx)
		},
	})
}
