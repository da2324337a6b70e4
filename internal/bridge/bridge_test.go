package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/enhance"
	"github.com/memohai/lark-enhance/internal/gateway"
	"github.com/memohai/lark-enhance/internal/plugin"
)

const testChannel channel.Type = "feishu"

type fakeChatter struct {
	mu      sync.Mutex
	reply   string
	err     error
	queries []string
}

func (c *fakeChatter) Chat(_ context.Context, req gateway.Request) (gateway.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, req.Query)
	if c.err != nil {
		return gateway.Response{}, c.err
	}
	return gateway.Response{Text: c.reply}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []channel.OutboundMessage
	err  error
}

func (s *fakeSender) Send(_ context.Context, _ channel.ChannelConfig, msg channel.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) messages() []channel.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]channel.OutboundMessage(nil), s.sent...)
}

func newHost(t *testing.T) *plugin.Host {
	t.Helper()
	p := enhance.NewPlugin(nil, enhance.PluginOptions{Target: testChannel},
		enhance.NewEnhancer(nil, nil, enhance.Phrases{}),
		enhance.NewNormalizer(enhance.NormalizerConfig{}))
	host := plugin.NewHost(nil)
	require.NoError(t, host.Register(p))
	require.NoError(t, host.Initialize(context.Background()))
	return host
}

func inbound(parts ...channel.MessagePart) channel.InboundMessage {
	return channel.InboundMessage{
		Channel:      testChannel,
		ReplyTarget:  "chat_id:oc_1",
		Conversation: channel.Conversation{ID: "oc_1", Type: channel.ConversationGroup},
		Message: channel.Message{
			ID:    "om_1",
			Parts: append([]channel.MessagePart{{Type: channel.MessagePartSource, MessageID: "om_1"}}, parts...),
		},
	}
}

func TestProcessEmptyMessageRepliesGreeting(t *testing.T) {
	t.Parallel()

	chat := &fakeChatter{reply: "unused"}
	sender := &fakeSender{}
	b := New(nil, newHost(t), chat, sender, Options{})

	msg := inbound(channel.MessagePart{Type: channel.MessagePartMention, Key: "@_user_1"})
	require.NoError(t, b.Process(context.Background(), channel.ChannelConfig{}, msg))

	assert.Empty(t, chat.queries)
	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "How can I help you?", sent[0].Message.Text)
	assert.Equal(t, "chat_id:oc_1", sent[0].Target)
	require.NotNil(t, sent[0].Message.Reply)
	assert.Equal(t, "om_1", sent[0].Message.Reply.MessageID)
}

func TestProcessTextGoesThroughGatewayAndNormalizer(t *testing.T) {
	t.Parallel()

	chat := &fakeChatter{reply: "<think>plan</think>Here:\n```mermaid\ngraph TD; A-->B\n```"}
	sender := &fakeSender{}
	b := New(nil, newHost(t), chat, sender, Options{})

	msg := inbound(channel.MessagePart{Type: channel.MessagePartText, Text: "draw it"})
	require.NoError(t, b.Process(context.Background(), channel.ChannelConfig{}, msg))

	assert.Equal(t, []string{"draw it"}, chat.queries)
	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, channel.MessageFormatMarkdown, sent[0].Message.Format)
	assert.True(t, strings.HasPrefix(sent[0].Message.Text, "Here:"))
	assert.Contains(t, sent[0].Message.Text, "[diagram](https://applink.feishu.cn/client/web_url/open?")
	assert.NotContains(t, sent[0].Message.Text, "plan")
}

func TestProcessRawResponseWhenNothingToNormalize(t *testing.T) {
	t.Parallel()

	chat := &fakeChatter{reply: "plain answer"}
	sender := &fakeSender{}
	b := New(nil, newHost(t), chat, sender, Options{})

	require.NoError(t, b.Process(context.Background(), channel.ChannelConfig{}, inbound(channel.MessagePart{Type: channel.MessagePartText, Text: "q"})))
	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "plain answer", sent[0].Message.Text)
}

func TestProcessDeclineSkipsGateway(t *testing.T) {
	t.Parallel()

	chat := &fakeChatter{}
	sender := &fakeSender{}
	b := New(nil, newHost(t), chat, sender, Options{})

	msg := inbound(channel.MessagePart{Type: channel.MessagePartImage, Key: "img"})
	require.NoError(t, b.Process(context.Background(), channel.ChannelConfig{}, msg))
	assert.Empty(t, chat.queries)
	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, enhance.PhrasesFor("en").UnsupportedNotice, sent[0].Message.Text)
}

func TestProcessErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	b := New(nil, newHost(t), &fakeChatter{err: boom}, &fakeSender{}, Options{})
	err := b.Process(context.Background(), channel.ChannelConfig{}, inbound(channel.MessagePart{Type: channel.MessagePartText, Text: "q"}))
	assert.ErrorIs(t, err, boom)

	sendErr := errors.New("send failed")
	b = New(nil, newHost(t), &fakeChatter{reply: "ok"}, &fakeSender{err: sendErr}, Options{})
	err = b.Process(context.Background(), channel.ChannelConfig{}, inbound(channel.MessagePart{Type: channel.MessagePartText, Text: "q"}))
	assert.ErrorIs(t, err, sendErr)
}

func TestHandleInboundRunsWorkers(t *testing.T) {
	t.Parallel()

	chat := &fakeChatter{reply: "pong"}
	sender := &fakeSender{}
	b := New(nil, newHost(t), chat, sender, Options{Workers: 2, QueueSize: 4})
	defer b.Stop()

	require.NoError(t, b.HandleInbound(context.Background(), channel.ChannelConfig{}, inbound(channel.MessagePart{Type: channel.MessagePartText, Text: "ping"})))
	assert.Eventually(t, func() bool {
		return len(sender.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type blockingChatter struct {
	release chan struct{}
}

func (c *blockingChatter) Chat(ctx context.Context, _ gateway.Request) (gateway.Response, error) {
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return gateway.Response{Text: "late"}, nil
}

func TestHandleInboundQueueFull(t *testing.T) {
	t.Parallel()

	chat := &blockingChatter{release: make(chan struct{})}
	b := New(nil, newHost(t), chat, &fakeSender{}, Options{Workers: 1, QueueSize: 1})
	msg := inbound(channel.MessagePart{Type: channel.MessagePartText, Text: "q"})

	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = b.HandleInbound(context.Background(), channel.ChannelConfig{}, msg)
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(chat.release)
	b.Stop()
	assert.ErrorIs(t, b.HandleInbound(context.Background(), channel.ChannelConfig{}, msg), ErrStopped)
}

type quoteFetcher map[string][]enhance.FetchedRecord

func (f quoteFetcher) GetMessage(_ context.Context, id string) ([]enhance.FetchedRecord, error) {
	return f[id], nil
}

func TestProcessForwardedQuoteReachesGateway(t *testing.T) {
	t.Parallel()

	fetcher := quoteFetcher{
		"om_1": {{ID: "om_1", ParentID: "om_0"}},
		"om_0": {{ID: "om_0", Type: enhance.RecordText, Body: `{"text":"summarize this"}`}},
	}
	p := enhance.NewPlugin(nil, enhance.PluginOptions{Target: testChannel, ForwardQuotes: true},
		enhance.NewEnhancer(nil, fetcher, enhance.Phrases{}),
		enhance.NewNormalizer(enhance.NormalizerConfig{}))
	host := plugin.NewHost(nil)
	require.NoError(t, host.Register(p))

	chat := &fakeChatter{reply: "summary"}
	sender := &fakeSender{}
	b := New(nil, host, chat, sender, Options{})

	msg := inbound(channel.MessagePart{Type: channel.MessagePartMention, Key: "@_user_1"})
	require.NoError(t, b.Process(context.Background(), channel.ChannelConfig{}, msg))
	assert.Equal(t, []string{"summarize this"}, chat.queries)
	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "summary", sent[0].Message.Text)
}
