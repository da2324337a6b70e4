package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/core/httpserverext"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/memohai/lark-enhance/internal/channel"
)

var mentionKeyPattern = regexp.MustCompile(`@_user_\d+|@_all`)

type FeishuAdapter struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*lark.Client
}

func NewFeishuAdapter(log *slog.Logger) *FeishuAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &FeishuAdapter{
		logger:  log.With(slog.String("adapter", "feishu")),
		clients: map[string]*lark.Client{},
	}
}

func (a *FeishuAdapter) Type() channel.Type {
	return Type
}

// Connection is a running Feishu connection. In webhook mode the event
// callback must be mounted through WebhookHandler.
type Connection struct {
	*channel.BaseConnection
	webhook http.HandlerFunc
}

// WebhookHandler returns the event callback handler, nil in websocket mode.
func (c *Connection) WebhookHandler() http.HandlerFunc {
	return c.webhook
}

// Client returns the cached API client for the given credentials.
func (a *FeishuAdapter) Client(cfg Config) *lark.Client {
	key := cfg.BaseURL + "|" + cfg.AppID
	a.mu.Lock()
	defer a.mu.Unlock()
	if client, ok := a.clients[key]; ok {
		return client
	}
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithOpenBaseUrl(cfg.BaseURL),
		lark.WithLogger(newLarkSlogLogger(a.logger)),
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithReqTimeout(30*time.Second),
	)
	a.clients[key] = client
	return client
}

// ClientFor decodes the channel credentials and returns the API client.
func (a *FeishuAdapter) ClientFor(cfg channel.ChannelConfig) (*lark.Client, error) {
	feishuCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return a.Client(feishuCfg), nil
}

func (a *FeishuAdapter) Connect(ctx context.Context, cfg channel.ChannelConfig, handler channel.InboundHandler) (channel.Connection, error) {
	if handler == nil {
		return nil, errors.New("inbound handler is required")
	}
	a.logger.Info("start", slog.String("config_id", cfg.ID))
	feishuCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		return nil, err
	}
	if cfg.ChannelType == "" {
		cfg.ChannelType = Type
	}
	connCtx, cancel := context.WithCancel(ctx)
	eventDispatcher := dispatcher.NewEventDispatcher(
		feishuCfg.VerificationToken,
		feishuCfg.EncryptKey,
	)
	eventDispatcher.OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
		msg := extractFeishuInbound(event)
		if msg.Message.IsEmpty() {
			return nil
		}
		msg.BotID = cfg.BotID
		a.logger.Info(
			"inbound received",
			slog.String("config_id", cfg.ID),
			slog.String("session_id", msg.SessionID()),
			slog.String("chat_type", msg.Conversation.Type),
			slog.Int("parts", len(msg.Message.Parts)),
			slog.String("text", channel.SummarizeText(msg.Message.PlainText())),
		)
		go func() {
			if err := handler(connCtx, cfg, msg); err != nil {
				a.logger.Error("handle inbound failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
			}
		}()
		return nil
	})
	eventDispatcher.OnP2MessageReadV1(func(_ context.Context, _ *larkim.P2MessageReadV1) error {
		return nil
	})

	stop := func(context.Context) error {
		cancel()
		return nil
	}
	conn := &Connection{BaseConnection: channel.NewConnection(cfg, stop)}

	if feishuCfg.Mode == ModeWebhook {
		conn.webhook = httpserverext.NewEventHandlerFunc(eventDispatcher)
		return conn, nil
	}

	client := larkws.NewClient(
		feishuCfg.AppID,
		feishuCfg.AppSecret,
		larkws.WithEventHandler(eventDispatcher),
		larkws.WithDomain(feishuCfg.BaseURL),
		larkws.WithLogger(newLarkSlogLogger(a.logger)),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)
	go func() {
		if err := client.Start(connCtx); err != nil && connCtx.Err() == nil {
			a.logger.Error("client start failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		}
	}()
	return conn, nil
}

func (a *FeishuAdapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	feishuCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		a.logger.Error("decode config failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		return err
	}
	text := strings.TrimSpace(msg.Message.PlainText())
	if text == "" {
		return errors.New("message is required")
	}

	msgType, content, err := buildContent(msg.Message.Format, text)
	if err != nil {
		return err
	}
	client := a.Client(feishuCfg)

	// 处理回复
	if msg.Message.Reply != nil && msg.Message.Reply.MessageID != "" {
		replyReq := larkim.NewReplyMessageReqBuilder().
			MessageId(msg.Message.Reply.MessageID).
			Body(larkim.NewReplyMessageReqBodyBuilder().
				Content(content).
				MsgType(msgType).
				Uuid(uuid.NewString()).
				Build()).
			Build()
		resp, err := client.Im.V1.Message.Reply(ctx, replyReq)
		var (
			ok   bool
			code int
			desc string
		)
		if resp != nil {
			ok, code, desc = resp.Success(), resp.Code, resp.Msg
		}
		return a.checkResult(cfg.ID, "reply", ok, code, desc, err)
	}

	receiveID, receiveType, err := resolveFeishuReceiveID(strings.TrimSpace(msg.Target))
	if err != nil {
		return err
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Uuid(uuid.NewString()).
			Build()).
		Build()
	resp, err := client.Im.V1.Message.Create(ctx, req)
	var (
		ok   bool
		code int
		desc string
	)
	if resp != nil {
		ok, code, desc = resp.Success(), resp.Code, resp.Msg
	}
	return a.checkResult(cfg.ID, "send", ok, code, desc, err)
}

func (a *FeishuAdapter) checkResult(configID, op string, ok bool, code int, msg string, err error) error {
	if err != nil {
		a.logger.Error(op+" failed", slog.String("config_id", configID), slog.Any("error", err))
		return err
	}
	if !ok {
		a.logger.Error(op+" failed", slog.String("config_id", configID), slog.Int("code", code), slog.String("msg", msg))
		return fmt.Errorf("feishu %s failed: %s (code: %d)", op, msg, code)
	}
	a.logger.Info(op+" success", slog.String("config_id", configID))
	return nil
}

type postContent struct {
	ZhCn postLocale `json:"zh_cn"`
}

type postLocale struct {
	Title   string  `json:"title"`
	Content [][]any `json:"content"`
}

// buildContent encodes text as a plain text message, or as a post with a
// single markdown element when the message is markdown.
func buildContent(format channel.MessageFormat, text string) (string, string, error) {
	if format != channel.MessageFormatMarkdown {
		payload, err := json.Marshal(map[string]string{"text": text})
		return larkim.MsgTypeText, string(payload), err
	}
	pc := postContent{ZhCn: postLocale{Content: [][]any{{
		map[string]any{"tag": "md", "text": text},
	}}}}
	payload, err := json.Marshal(pc)
	return larkim.MsgTypePost, string(payload), err
}

func extractFeishuInbound(event *larkim.P2MessageReceiveV1) channel.InboundMessage {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return channel.InboundMessage{Channel: Type}
	}
	message := event.Event.Message

	var msg channel.Message
	if message.MessageId != nil {
		msg.ID = strings.TrimSpace(*message.MessageId)
	}
	if msg.ID != "" {
		msg.Parts = append(msg.Parts, channel.MessagePart{Type: channel.MessagePartSource, MessageID: msg.ID})
	}
	msgType, content := "", ""
	if message.MessageType != nil {
		msgType = *message.MessageType
	}
	if message.Content != nil {
		content = *message.Content
	}
	msg.Parts = append(msg.Parts, contentParts(msgType, content, message.Mentions)...)

	// 处理回复引用
	if message.ParentId != nil && *message.ParentId != "" {
		msg.Reply = &channel.ReplyRef{MessageID: *message.ParentId}
	}

	senderID, senderOpenID := "", ""
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		if event.Event.Sender.SenderId.UserId != nil {
			senderID = strings.TrimSpace(*event.Event.Sender.SenderId.UserId)
		}
		if event.Event.Sender.SenderId.OpenId != nil {
			senderOpenID = strings.TrimSpace(*event.Event.Sender.SenderId.OpenId)
		}
	}
	chatID := ""
	chatType := ""
	if message.ChatId != nil {
		chatID = strings.TrimSpace(*message.ChatId)
	}
	if message.ChatType != nil {
		chatType = strings.TrimSpace(*message.ChatType)
	}
	replyTo := senderOpenID
	if replyTo == "" {
		replyTo = senderID
	}
	if chatType != "" && chatType != channel.ConversationPrivate && chatID != "" {
		replyTo = "chat_id:" + chatID
	}
	attrs := map[string]string{}
	if senderID != "" {
		attrs["user_id"] = senderID
	}
	if senderOpenID != "" {
		attrs["open_id"] = senderOpenID
	}
	externalID := senderOpenID
	if externalID == "" {
		externalID = senderID
	}

	return channel.InboundMessage{
		Channel:     Type,
		Message:     msg,
		ReplyTarget: replyTo,
		Sender: channel.Identity{
			ExternalID:  externalID,
			DisplayName: senderOpenID,
			Attributes:  attrs,
		},
		Conversation: channel.Conversation{
			ID:   chatID,
			Type: chatType,
		},
		ReceivedAt: time.Now().UTC(),
		Source:     "feishu",
	}
}

type inboundPostElement struct {
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Href     string `json:"href"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	ImageKey string `json:"image_key"`
	FileKey  string `json:"file_key"`
}

type inboundPost struct {
	Title   string                 `json:"title"`
	Content [][]inboundPostElement `json:"content"`
}

// contentParts splits a message body into typed parts.
func contentParts(msgType, content string, mentions []*larkim.MentionEvent) []channel.MessagePart {
	var contentMap map[string]any
	if content != "" {
		_ = json.Unmarshal([]byte(content), &contentMap)
	}
	key := func(name string) string {
		v, _ := contentMap[name].(string)
		return v
	}

	switch msgType {
	case larkim.MsgTypeText:
		return textParts(key("text"), mentions)
	case larkim.MsgTypePost:
		return postParts(content, mentions)
	case larkim.MsgTypeImage:
		return []channel.MessagePart{{Type: channel.MessagePartImage, Key: key("image_key")}}
	case "sticker":
		return []channel.MessagePart{{Type: channel.MessagePartImage, Key: key("file_key")}}
	case larkim.MsgTypeAudio:
		return []channel.MessagePart{{Type: channel.MessagePartVoice, Key: key("file_key")}}
	case larkim.MsgTypeFile, "media":
		return []channel.MessagePart{{Type: channel.MessagePartFile, Key: key("file_key"), Name: key("file_name")}}
	case "":
		return nil
	default:
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []channel.MessagePart{{Type: channel.MessagePartText, Text: content}}
	}
}

func textParts(text string, mentions []*larkim.MentionEvent) []channel.MessagePart {
	byKey := make(map[string]*larkim.MentionEvent, len(mentions))
	for _, m := range mentions {
		if m != nil && m.Key != nil {
			byKey[*m.Key] = m
		}
	}
	var parts []channel.MessagePart
	appendText := func(segment string) {
		if strings.TrimSpace(segment) != "" {
			parts = append(parts, channel.MessagePart{Type: channel.MessagePartText, Text: strings.TrimSpace(segment)})
		}
	}
	last := 0
	for _, loc := range mentionKeyPattern.FindAllStringIndex(text, -1) {
		appendText(text[last:loc[0]])
		parts = append(parts, mentionPart(text[loc[0]:loc[1]], byKey))
		last = loc[1]
	}
	appendText(text[last:])
	return parts
}

func mentionPart(key string, byKey map[string]*larkim.MentionEvent) channel.MessagePart {
	part := channel.MessagePart{Type: channel.MessagePartMention, Key: key}
	m, ok := byKey[key]
	if !ok {
		return part
	}
	if m.Name != nil {
		part.Name = *m.Name
	}
	if m.Id != nil {
		switch {
		case m.Id.OpenId != nil && *m.Id.OpenId != "":
			part.UserID = *m.Id.OpenId
		case m.Id.UserId != nil:
			part.UserID = *m.Id.UserId
		}
	}
	return part
}

func postParts(content string, mentions []*larkim.MentionEvent) []channel.MessagePart {
	var post inboundPost
	if err := json.Unmarshal([]byte(content), &post); err != nil {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []channel.MessagePart{{Type: channel.MessagePartText, Text: content}}
	}
	byKey := make(map[string]*larkim.MentionEvent, len(mentions))
	for _, m := range mentions {
		if m != nil && m.Key != nil {
			byKey[*m.Key] = m
		}
	}
	var parts []channel.MessagePart
	if title := strings.TrimSpace(post.Title); title != "" {
		parts = append(parts, channel.MessagePart{Type: channel.MessagePartText, Text: title})
	}
	for _, paragraph := range post.Content {
		for _, el := range paragraph {
			switch el.Tag {
			case "text", "md":
				if strings.TrimSpace(el.Text) != "" {
					parts = append(parts, channel.MessagePart{Type: channel.MessagePartText, Text: strings.TrimSpace(el.Text)})
				}
			case "a":
				text := strings.TrimSpace(el.Text)
				if text == "" {
					text = strings.TrimSpace(el.Href)
				}
				if text != "" {
					parts = append(parts, channel.MessagePart{Type: channel.MessagePartText, Text: text})
				}
			case "at":
				part := mentionPart(el.UserID, byKey)
				if part.Name == "" {
					part.Name = el.UserName
				}
				parts = append(parts, part)
			case "img":
				parts = append(parts, channel.MessagePart{Type: channel.MessagePartImage, Key: el.ImageKey})
			case "media":
				parts = append(parts, channel.MessagePart{Type: channel.MessagePartFile, Key: el.FileKey})
			}
		}
	}
	return parts
}

func resolveFeishuReceiveID(raw string) (string, string, error) {
	if raw == "" {
		return "", "", errors.New("feishu target is required")
	}
	if strings.HasPrefix(raw, "open_id:") {
		return strings.TrimPrefix(raw, "open_id:"), larkim.ReceiveIdTypeOpenId, nil
	}
	if strings.HasPrefix(raw, "user_id:") {
		return strings.TrimPrefix(raw, "user_id:"), larkim.ReceiveIdTypeUserId, nil
	}
	if strings.HasPrefix(raw, "chat_id:") {
		return strings.TrimPrefix(raw, "chat_id:"), larkim.ReceiveIdTypeChatId, nil
	}
	return raw, larkim.ReceiveIdTypeOpenId, nil
}
