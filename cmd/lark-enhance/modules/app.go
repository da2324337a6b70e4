// Package modules holds the fx modules of the serve command.
package modules

import (
	"log/slog"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/lark-enhance/internal/config"
	"github.com/memohai/lark-enhance/internal/logger"
)

// Options returns the complete serve application graph for cfg.
func Options(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(provideLogger),
		ChannelModule,
		EnhanceModule,
		BridgeModule,
		ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func NewApp(cfg config.Config) *fx.App {
	return fx.New(Options(cfg))
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.Init(cfg.Log.Level, cfg.Log.Format)
}
