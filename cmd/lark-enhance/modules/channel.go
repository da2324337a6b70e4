package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/lark-enhance/internal/bridge"
	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/channel/adapters/feishu"
	"github.com/memohai/lark-enhance/internal/config"
	"github.com/memohai/lark-enhance/internal/enhance"
	"github.com/memohai/lark-enhance/internal/handlers"
)

var ChannelModule = fx.Module(
	"channel",
	fx.Provide(
		feishu.NewFeishuAdapter,
		provideChannelConfig,
		provideFetcher,
	),
)

func provideChannelConfig(cfg config.Config) channel.ChannelConfig {
	return cfg.Feishu.ChannelConfig()
}

func provideFetcher(log *slog.Logger, adapter *feishu.FeishuAdapter, chCfg channel.ChannelConfig) (enhance.Fetcher, error) {
	client, err := adapter.ClientFor(chCfg)
	if err != nil {
		return nil, fmt.Errorf("feishu client: %w", err)
	}
	return feishu.NewFetcher(log, client.Im.V1.Message), nil
}

// startChannel connects the adapter once the bridge is ready and mounts the
// webhook callback when events arrive over HTTP.
func startChannel(
	lc fx.Lifecycle,
	log *slog.Logger,
	adapter *feishu.FeishuAdapter,
	chCfg channel.ChannelConfig,
	b *bridge.Bridge,
	webhook *handlers.WebhookHandler,
) {
	var conn channel.Connection
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			b.Start(ctx)
			c, err := adapter.Connect(context.WithoutCancel(ctx), chCfg, b.HandleInbound)
			if err != nil {
				return fmt.Errorf("connect feishu: %w", err)
			}
			conn = c
			if fc, ok := c.(*feishu.Connection); ok {
				if h := fc.WebhookHandler(); h != nil {
					webhook.Attach(h)
				}
			}
			log.Info("channel connected", slog.String("config_id", chCfg.ID), slog.String("bot_id", chCfg.BotID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			webhook.Attach(nil)
			if conn != nil {
				if err := conn.Stop(ctx); err != nil {
					log.Warn("channel stop failed", slog.Any("error", err))
				}
			}
			b.Stop()
			return nil
		},
	})
}
