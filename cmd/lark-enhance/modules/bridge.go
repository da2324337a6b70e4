package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/lark-enhance/internal/bridge"
	"github.com/memohai/lark-enhance/internal/channel/adapters/feishu"
	"github.com/memohai/lark-enhance/internal/config"
	"github.com/memohai/lark-enhance/internal/gateway"
	"github.com/memohai/lark-enhance/internal/plugin"
)

var BridgeModule = fx.Module(
	"bridge",
	fx.Provide(
		provideGatewayClient,
		provideBridge,
	),
	fx.Invoke(startChannel),
)

func provideGatewayClient(log *slog.Logger, cfg config.Config) *gateway.Client {
	return gateway.NewClient(log, cfg.AgentGateway.BaseURL(), cfg.AgentGateway.Timeout())
}

func provideBridge(log *slog.Logger, cfg config.Config, host *plugin.Host, client *gateway.Client, adapter *feishu.FeishuAdapter) *bridge.Bridge {
	return bridge.New(log, host, client, adapter, bridge.Options{
		Workers:   cfg.Bridge.Workers,
		QueueSize: cfg.Bridge.QueueSize,
	})
}
