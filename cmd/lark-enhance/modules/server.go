package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/lark-enhance/internal/config"
	"github.com/memohai/lark-enhance/internal/handlers"
	"github.com/memohai/lark-enhance/internal/server"
	"github.com/memohai/lark-enhance/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideWebhookHandler,
		provideServerHandler(providePingHandler),
		provideServerHandler(handlers.NewEnhanceHandler),
		provideServerHandler(func(h *handlers.WebhookHandler) *handlers.WebhookHandler { return h }),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log, version.Name)
}

func provideWebhookHandler(log *slog.Logger) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, "/webhook/feishu")
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Server.JWTSecret, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting", slog.String("version", version.GetInfo()), slog.String("addr", srv.Addr()))
			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
