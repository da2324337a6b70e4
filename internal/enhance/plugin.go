package enhance

import (
	"context"
	"log/slog"

	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/plugin"
)

// PluginName is the registered name of the enhance plugin.
const PluginName = "LarkEnhance"

// PluginOptions configures the enhance plugin.
type PluginOptions struct {
	// Target is the only adapter type the plugin acts on.
	Target channel.Type
	// ForwardQuotes hands resolved quote text to the agent as the effective
	// input instead of replying with it directly.
	ForwardQuotes bool
}

// Plugin attaches the enhancer and normalizer to the host's message events.
type Plugin struct {
	opts       PluginOptions
	enhancer   *Enhancer
	normalizer *Normalizer
	logger     *slog.Logger
}

func NewPlugin(log *slog.Logger, opts PluginOptions, enhancer *Enhancer, normalizer *Normalizer) *Plugin {
	if log == nil {
		log = slog.Default()
	}
	return &Plugin{
		opts:       opts,
		enhancer:   enhancer,
		normalizer: normalizer,
		logger:     log.With(slog.String("plugin", PluginName)),
	}
}

func (p *Plugin) Name() string {
	return PluginName
}

func (p *Plugin) Initialize(_ context.Context) error {
	p.logger.Info("plugin loaded", slog.String("target", p.opts.Target.String()))
	return nil
}

func (p *Plugin) Destroy(_ context.Context) error {
	p.logger.Info("plugin unloaded")
	return nil
}

func (p *Plugin) Handlers() map[plugin.EventType]plugin.Handler {
	return map[plugin.EventType]plugin.Handler{
		plugin.PersonNormalMessageReceived: p.OnInboundMessage,
		plugin.GroupNormalMessageReceived:  p.OnInboundMessage,
		plugin.NormalMessageResponded:      p.OnResponseProduced,
	}
}

func (p *Plugin) targets(q *plugin.Query) bool {
	return q != nil && q.Adapter == p.opts.Target
}

// OnInboundMessage replaces effectively empty messages with their quoted
// content and answers unsupported content with a notice.
func (p *Plugin) OnInboundMessage(ctx context.Context, ec *plugin.EventContext) error {
	q := ec.Event.Query
	if !p.targets(q) {
		return nil
	}
	action := p.enhancer.ClassifyAndResolve(ctx, q.Message.Message)
	p.logger.Debug("inbound classified",
		slog.String("message_id", q.Message.Message.ID),
		slog.String("verdict", action.Verdict.String()),
	)
	switch action.Verdict {
	case Decline:
		ec.AddReturn(plugin.ReturnReply, action.Text)
		ec.PreventDefault()
	case Substitute:
		ec.SetAlter(action.Text)
		if p.opts.ForwardQuotes && action.Quoted {
			return nil
		}
		ec.AddReturn(plugin.ReturnReply, action.Text)
		ec.PreventDefault()
	}
	return nil
}

// OnResponseProduced supplies the normalized reply. Default handling is left
// enabled; the reply return replaces the raw response.
func (p *Plugin) OnResponseProduced(_ context.Context, ec *plugin.EventContext) error {
	if ec.Event.ResponseText == "" {
		return nil
	}
	if !p.targets(ec.Event.Query) {
		return nil
	}
	text, ok := p.normalizer.Normalize(ec.Event.ResponseText)
	if !ok {
		return nil
	}
	ec.SetAlter(text)
	ec.AddReturn(plugin.ReturnReply, text)
	return nil
}
