// Package bridge connects a channel adapter to the plugin host and the agent
// gateway: inbound messages pass through plugin events, then to the gateway,
// and the replies go back out through the adapter.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/gateway"
	"github.com/memohai/lark-enhance/internal/plugin"
)

var (
	ErrQueueFull = errors.New("inbound queue full")
	ErrStopped   = errors.New("inbound dispatcher stopped")
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Emitter dispatches plugin events.
type Emitter interface {
	Emit(ctx context.Context, event plugin.Event) *plugin.EventContext
}

// Chatter produces the agent reply for a query.
type Chatter interface {
	Chat(ctx context.Context, req gateway.Request) (gateway.Response, error)
}

type Options struct {
	Workers   int
	QueueSize int
}

type inboundTask struct {
	ctx context.Context
	cfg channel.ChannelConfig
	msg channel.InboundMessage
}

type Bridge struct {
	host    Emitter
	chat    Chatter
	sender  channel.Sender
	logger  *slog.Logger
	workers int
	queue   chan inboundTask

	once   sync.Once
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log *slog.Logger, host Emitter, chat Chatter, sender channel.Sender, opts Options) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Bridge{
		host:    host,
		chat:    chat,
		sender:  sender,
		logger:  log.With(slog.String("component", "bridge")),
		workers: opts.Workers,
		queue:   make(chan inboundTask, opts.QueueSize),
	}
}

// HandleInbound enqueues an inbound message for asynchronous processing by the
// worker pool. It satisfies channel.InboundHandler.
func (b *Bridge) HandleInbound(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.Start(ctx)
	b.mu.Lock()
	stopped := b.ctx.Err() != nil
	b.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	task := inboundTask{
		ctx: context.WithoutCancel(ctx),
		cfg: cfg,
		msg: msg,
	}
	select {
	case b.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers once. Later calls are no-ops.
func (b *Bridge) Start(ctx context.Context) {
	b.once.Do(func() {
		workerCtx := context.WithoutCancel(ctx)
		b.mu.Lock()
		b.ctx, b.cancel = context.WithCancel(workerCtx)
		runCtx := b.ctx
		b.mu.Unlock()
		for i := 0; i < b.workers; i++ {
			b.wg.Add(1)
			go b.runWorker(runCtx)
		}
	})
}

// Stop halts the workers and waits for in-flight messages. Queued messages
// are dropped.
func (b *Bridge) Stop() {
	b.Start(context.Background())
	b.mu.Lock()
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) runWorker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-b.queue:
			if err := b.Process(task.ctx, task.cfg, task.msg); err != nil {
				b.logger.Error("inbound processing failed", slog.String("channel", task.msg.Channel.String()), slog.Any("error", err))
			}
		}
	}
}

// Process runs one inbound message through the plugin events and the gateway.
func (b *Bridge) Process(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) error {
	query := &plugin.Query{Adapter: msg.Channel, Message: msg}
	received := b.host.Emit(ctx, plugin.Event{Type: plugin.ReceivedEventType(msg), Query: query})
	if received.IsPreventDefault() {
		return b.reply(ctx, cfg, msg, channel.MessageFormatPlain, received.Returns(plugin.ReturnReply))
	}

	text, ok := received.Alter()
	if !ok {
		text = msg.Message.PlainText()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		b.logger.Debug("inbound has no text, skipped", slog.String("session_id", msg.SessionID()))
		return nil
	}

	resp, err := b.chat.Chat(ctx, gateway.Request{
		SessionID: msg.SessionID(),
		Query:     text,
		Channel:   msg.Channel,
	})
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	responded := b.host.Emit(ctx, plugin.Event{
		Type:         plugin.NormalMessageResponded,
		Query:        query,
		ResponseText: resp.Text,
	})
	replies := responded.Returns(plugin.ReturnReply)
	if len(replies) == 0 {
		replies = []string{resp.Text}
	}
	return b.reply(ctx, cfg, msg, channel.MessageFormatMarkdown, replies)
}

func (b *Bridge) reply(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage, format channel.MessageFormat, replies []string) error {
	if b.sender == nil {
		return errors.New("reply sender not configured")
	}
	var errs []error
	for _, text := range replies {
		if strings.TrimSpace(text) == "" {
			continue
		}
		out := channel.OutboundMessage{
			Target: msg.ReplyTarget,
			Message: channel.Message{
				Format: format,
				Text:   text,
			},
		}
		if msg.Message.ID != "" {
			out.Message.Reply = &channel.ReplyRef{MessageID: msg.Message.ID}
		}
		if err := b.sender.Send(ctx, cfg, out); err != nil {
			errs = append(errs, err)
			continue
		}
		b.logger.Info("reply sent", slog.String("session_id", msg.SessionID()), slog.String("text", channel.SummarizeText(text)))
	}
	return errors.Join(errs...)
}
