package channel

import (
	"strings"
	"time"
)

// Type identifies a messaging backend (e.g. "feishu").
type Type string

func (t Type) String() string {
	return string(t)
}

type Identity struct {
	ExternalID  string
	DisplayName string
	Attributes  map[string]string
}

func (i Identity) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// Conversation types reported by adapters.
const (
	ConversationPrivate = "p2p"
	ConversationGroup   = "group"
)

type Conversation struct {
	ID   string
	Type string
	Name string
}

// IsGroup reports whether the conversation has more than two participants.
func (c Conversation) IsGroup() bool {
	ct := strings.ToLower(strings.TrimSpace(c.Type))
	return ct != "" && ct != ConversationPrivate && ct != "private"
}

type InboundMessage struct {
	Channel      Type
	Message      Message
	BotID        string
	ReplyTarget  string
	Sender       Identity
	Conversation Conversation
	ReceivedAt   time.Time
	Source       string
}

// SessionID 结构: platform:bot_id:conversation_id[:sender_id]
func (m InboundMessage) SessionID() string {
	senderID := strings.TrimSpace(m.Sender.ExternalID)
	if senderID == "" {
		senderID = strings.TrimSpace(m.Sender.DisplayName)
	}
	parts := []string{string(m.Channel), m.BotID, m.Conversation.ID}
	if m.Conversation.IsGroup() && senderID != "" {
		parts = append(parts, senderID)
	}
	return strings.Join(parts, ":")
}

type OutboundMessage struct {
	Target  string  `json:"target"`
	Message Message `json:"message"`
}

type MessageFormat string

const (
	MessageFormatPlain    MessageFormat = "plain"
	MessageFormatMarkdown MessageFormat = "markdown"
)

// MessagePartType is the kind of a single element of an inbound message.
type MessagePartType string

const (
	// MessagePartSource is the envelope marker carrying the platform message id.
	MessagePartSource  MessagePartType = "source"
	MessagePartMention MessagePartType = "mention"
	MessagePartText    MessagePartType = "text"
	MessagePartImage   MessagePartType = "image"
	MessagePartVoice   MessagePartType = "voice"
	MessagePartFile    MessagePartType = "file"
)

type MessagePart struct {
	Type      MessagePartType `json:"type"`
	Text      string          `json:"text,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Key       string          `json:"key,omitempty"`
	Name      string          `json:"name,omitempty"`
}

type ReplyRef struct {
	MessageID string `json:"message_id,omitempty"`
}

type Message struct {
	ID     string        `json:"id,omitempty"`
	Format MessageFormat `json:"format,omitempty"`
	Text   string        `json:"text,omitempty"`
	Parts  []MessagePart `json:"parts,omitempty"`
	Reply  *ReplyRef     `json:"reply,omitempty"`
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Parts) == 0
}

// SourceID returns the message id carried by the first source part.
func (m Message) SourceID() string {
	for _, part := range m.Parts {
		if part.Type == MessagePartSource {
			return strings.TrimSpace(part.MessageID)
		}
	}
	return ""
}

func (m Message) PlainText() string {
	if strings.TrimSpace(m.Text) != "" {
		return strings.TrimSpace(m.Text)
	}
	if len(m.Parts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.Parts))
	for _, part := range m.Parts {
		if part.Type != MessagePartText {
			continue
		}
		value := strings.TrimSpace(part.Text)
		if value == "" {
			continue
		}
		lines = append(lines, value)
	}
	return strings.Join(lines, "\n")
}

// ChannelConfig carries the per-bot settings an adapter needs to connect.
type ChannelConfig struct {
	ID          string
	BotID       string
	ChannelType Type
	Credentials map[string]any
}
