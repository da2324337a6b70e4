// Package channel defines the message model shared by channel adapters and the
// enhance pipeline.
package channel

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

var ErrStopNotSupported = errors.New("channel connection stop not supported")

type InboundHandler func(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error

type Adapter interface {
	Type() Type
}

type Sender interface {
	Send(ctx context.Context, cfg ChannelConfig, msg OutboundMessage) error
}

type Receiver interface {
	Connect(ctx context.Context, cfg ChannelConfig, handler InboundHandler) (Connection, error)
}

type Connection interface {
	ConfigID() string
	BotID() string
	ChannelType() Type
	Stop(ctx context.Context) error
	Running() bool
}

type BaseConnection struct {
	configID    string
	botID       string
	channelType Type
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

func NewConnection(cfg ChannelConfig, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		configID:    cfg.ID,
		botID:       cfg.BotID,
		channelType: cfg.ChannelType,
		stop:        stop,
	}
	conn.running.Store(true)
	return conn
}

func (c *BaseConnection) ConfigID() string {
	return c.configID
}

func (c *BaseConnection) BotID() string {
	return c.botID
}

func (c *BaseConnection) ChannelType() Type {
	return c.channelType
}

func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	err := c.stop(ctx)
	if err == nil {
		c.running.Store(false)
	}
	return err
}

func (c *BaseConnection) Running() bool {
	return c.running.Load()
}

// SummarizeText returns a truncated preview of the text, limited to 120 characters.
func SummarizeText(text string) string {
	value := strings.TrimSpace(text)
	if value == "" {
		return ""
	}
	const limit = 120
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
