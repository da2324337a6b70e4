package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/enhance"
)

func strPtr(s string) *string { return &s }

func receiveEvent(msgType, content, chatType string) *larkim.P2MessageReceiveV1 {
	return &larkim.P2MessageReceiveV1{
		Event: &larkim.P2MessageReceiveV1Data{
			Message: &larkim.EventMessage{
				MessageId:   strPtr("om_1"),
				MessageType: strPtr(msgType),
				Content:     strPtr(content),
				ChatType:    strPtr(chatType),
				ChatId:      strPtr("oc_1"),
			},
			Sender: &larkim.EventSender{
				SenderId: &larkim.UserId{
					UserId: strPtr("u_1"),
					OpenId: strPtr("ou_1"),
				},
			},
		},
	}
}

func partTypes(parts []channel.MessagePart) []channel.MessagePartType {
	out := make([]channel.MessagePartType, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.Type)
	}
	return out
}

func TestResolveFeishuReceiveID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw       string
		wantID    string
		wantType  string
		shouldErr bool
	}{
		{raw: "open_id:ou_123", wantID: "ou_123", wantType: "open_id"},
		{raw: "user_id:uu_123", wantID: "uu_123", wantType: "user_id"},
		{raw: "chat_id:oc_123", wantID: "oc_123", wantType: "chat_id"},
		{raw: "ou_999", wantID: "ou_999", wantType: "open_id"},
		{raw: "", shouldErr: true},
	}
	for _, tc := range cases {
		id, idType, err := resolveFeishuReceiveID(tc.raw)
		if tc.shouldErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", tc.raw, err)
		}
		if id != tc.wantID || idType != tc.wantType {
			t.Fatalf("unexpected result for %q: %s %s", tc.raw, id, idType)
		}
	}
}

func TestExtractFeishuInboundP2P(t *testing.T) {
	t.Parallel()

	got := extractFeishuInbound(receiveEvent(larkim.MsgTypeText, `{"text":"hi"}`, "p2p"))
	if got.Message.PlainText() != "hi" {
		t.Fatalf("unexpected text: %s", got.Message.PlainText())
	}
	if got.ReplyTarget != "ou_1" {
		t.Fatalf("unexpected reply target: %s", got.ReplyTarget)
	}
	if got.Message.SourceID() != "om_1" {
		t.Fatalf("unexpected source id: %s", got.Message.SourceID())
	}
	if got.Conversation.IsGroup() {
		t.Fatalf("p2p chat reported as group")
	}
}

func TestExtractFeishuInboundGroup(t *testing.T) {
	t.Parallel()

	got := extractFeishuInbound(receiveEvent(larkim.MsgTypeText, `{"text":"hi"}`, "group"))
	if got.ReplyTarget != "chat_id:oc_1" {
		t.Fatalf("unexpected reply target: %s", got.ReplyTarget)
	}
	if !got.Conversation.IsGroup() {
		t.Fatalf("expected group conversation")
	}
}

func TestExtractFeishuInboundMentionOnly(t *testing.T) {
	t.Parallel()

	event := receiveEvent(larkim.MsgTypeText, `{"text":"@_user_1 "}`, "group")
	event.Event.Message.ParentId = strPtr("om_parent")
	event.Event.Message.Mentions = []*larkim.MentionEvent{{
		Key:  strPtr("@_user_1"),
		Name: strPtr("bot"),
		Id:   &larkim.UserId{OpenId: strPtr("ou_bot")},
	}}

	got := extractFeishuInbound(event)
	require.Equal(t, []channel.MessagePartType{channel.MessagePartSource, channel.MessagePartMention}, partTypes(got.Message.Parts))
	assert.Equal(t, "ou_bot", got.Message.Parts[1].UserID)
	assert.Equal(t, "bot", got.Message.Parts[1].Name)
	assert.Equal(t, "", got.Message.PlainText())
	require.NotNil(t, got.Message.Reply)
	assert.Equal(t, "om_parent", got.Message.Reply.MessageID)
}

func TestExtractFeishuInboundMentionWithText(t *testing.T) {
	t.Parallel()

	event := receiveEvent(larkim.MsgTypeText, `{"text":"@_user_1 hello @_all"}`, "group")
	got := extractFeishuInbound(event)
	assert.Equal(t, []channel.MessagePartType{
		channel.MessagePartSource,
		channel.MessagePartMention,
		channel.MessagePartText,
		channel.MessagePartMention,
	}, partTypes(got.Message.Parts))
	assert.Equal(t, "hello", got.Message.PlainText())
}

func TestExtractFeishuInboundMediaTypes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msgType string
		content string
		want    channel.MessagePartType
	}{
		{larkim.MsgTypeImage, `{"image_key":"img_1"}`, channel.MessagePartImage},
		{larkim.MsgTypeAudio, `{"file_key":"f_1"}`, channel.MessagePartVoice},
		{larkim.MsgTypeFile, `{"file_key":"f_2","file_name":"a.pdf"}`, channel.MessagePartFile},
		{"media", `{"file_key":"f_3"}`, channel.MessagePartFile},
		{"sticker", `{"file_key":"s_1"}`, channel.MessagePartImage},
		{"share_chat", `{"chat_id":"oc_9"}`, channel.MessagePartText},
	}
	for _, tc := range cases {
		got := extractFeishuInbound(receiveEvent(tc.msgType, tc.content, "p2p"))
		require.Len(t, got.Message.Parts, 2, tc.msgType)
		assert.Equal(t, tc.want, got.Message.Parts[1].Type, tc.msgType)
	}
}

func TestExtractFeishuInboundPost(t *testing.T) {
	t.Parallel()

	content := `{"title":"T","content":[[{"tag":"text","text":"see"},{"tag":"at","user_id":"@_user_1","user_name":"bot"}],[{"tag":"img","image_key":"img_1"}]]}`
	got := extractFeishuInbound(receiveEvent(larkim.MsgTypePost, content, "p2p"))
	assert.Equal(t, []channel.MessagePartType{
		channel.MessagePartSource,
		channel.MessagePartText,
		channel.MessagePartText,
		channel.MessagePartMention,
		channel.MessagePartImage,
	}, partTypes(got.Message.Parts))
	assert.Equal(t, "bot", got.Message.Parts[3].Name)
}

func TestExtractFeishuInboundPostBlankLink(t *testing.T) {
	t.Parallel()

	content := `{"content":[[{"tag":"a","text":" ","href":""},{"tag":"at","user_id":"@_user_1","user_name":"bot"}]]}`
	event := receiveEvent(larkim.MsgTypePost, content, "group")
	event.Event.Message.ParentId = strPtr("om_parent")
	got := extractFeishuInbound(event)
	assert.Equal(t, []channel.MessagePartType{
		channel.MessagePartSource,
		channel.MessagePartMention,
	}, partTypes(got.Message.Parts))
	assert.Equal(t, enhance.Substitute, enhance.Classify(got.Message).Verdict)

	content = `{"content":[[{"tag":"a","text":"","href":"https://example.com"}]]}`
	got = extractFeishuInbound(receiveEvent(larkim.MsgTypePost, content, "p2p"))
	assert.Equal(t, "https://example.com", got.Message.PlainText())
}

func TestExtractFeishuInboundEmpty(t *testing.T) {
	t.Parallel()

	got := extractFeishuInbound(&larkim.P2MessageReceiveV1{})
	if !got.Message.IsEmpty() {
		t.Fatalf("expected empty message")
	}
	if got.Channel != Type {
		t.Fatalf("unexpected channel: %s", got.Channel)
	}
}

func TestBuildContent(t *testing.T) {
	t.Parallel()

	msgType, content, err := buildContent(channel.MessageFormatPlain, "hello")
	require.NoError(t, err)
	assert.Equal(t, larkim.MsgTypeText, msgType)
	assert.JSONEq(t, `{"text":"hello"}`, content)

	msgType, content, err = buildContent(channel.MessageFormatMarkdown, "[diagram](https://x)")
	require.NoError(t, err)
	assert.Equal(t, larkim.MsgTypePost, msgType)
	var post struct {
		ZhCn struct {
			Content [][]map[string]string `json:"content"`
		} `json:"zh_cn"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &post))
	require.Len(t, post.ZhCn.Content, 1)
	assert.Equal(t, "md", post.ZhCn.Content[0][0]["tag"])
	assert.Equal(t, "[diagram](https://x)", post.ZhCn.Content[0][0]["text"])
}

func TestSDKLoggerForwardsToSlog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sdk := newLarkSlogLogger(log)

	sdk.Debug(context.Background(), "hidden")
	sdk.Info(context.Background(), "connected ", "ws")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "connected ws")
	assert.Contains(t, out, "source=lark_sdk")
}
