package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/memohai/lark-enhance/internal/channel"
)

// ErrNoSource is returned when a quote lookup has no message id to start from.
var ErrNoSource = errors.New("message has no source id")

// Record types the resolver can read text from.
const (
	RecordText = "text"
	RecordPost = "post"
)

// FetchedRecord is one message record returned by the messaging backend.
type FetchedRecord struct {
	ID       string
	ParentID string
	Type     string
	Body     string
}

// Fetcher loads message records by id. Implementations are read-only.
type Fetcher interface {
	GetMessage(ctx context.Context, messageID string) ([]FetchedRecord, error)
}

// Enhancer classifies inbound messages and resolves quoted content for the
// empty ones.
type Enhancer struct {
	fetcher Fetcher
	phrases Phrases
	logger  *slog.Logger
}

// NewEnhancer creates an Enhancer. A nil fetcher disables quote resolution.
func NewEnhancer(log *slog.Logger, fetcher Fetcher, phrases Phrases) *Enhancer {
	if log == nil {
		log = slog.Default()
	}
	return &Enhancer{
		fetcher: fetcher,
		phrases: PhrasesFor("").Merge(phrases),
		logger:  log.With(slog.String("component", "enhance")),
	}
}

// ClassifyAndResolve returns the action for msg. It never fails: fetch and
// decode problems end in the default greeting.
func (e *Enhancer) ClassifyAndResolve(ctx context.Context, msg channel.Message) Action {
	c := Classify(msg)
	switch c.Verdict {
	case Decline:
		return Action{Verdict: Decline, Text: e.phrases.UnsupportedNotice}
	case PassThrough:
		return Action{Verdict: PassThrough}
	}
	e.logger.Debug("empty message detected", slog.String("source_id", c.SourceID))
	text, err := e.ResolveQuote(ctx, c.SourceID)
	switch {
	case errors.Is(err, ErrNoSource):
		e.logger.Debug("empty message has no source part")
	case err != nil:
		e.logger.Warn("resolve quote failed", slog.String("source_id", c.SourceID), slog.Any("error", err))
	}
	if text != "" {
		return Action{Verdict: Substitute, Text: text, Quoted: true}
	}
	e.logger.Debug("no quoted content, using default greeting", slog.String("source_id", c.SourceID))
	return Action{Verdict: Substitute, Text: e.phrases.DefaultGreeting}
}

// ResolveQuote fetches messageID, then the message it replies to, and returns
// the parent's text content joined by newlines. An empty result with a nil
// error means there was nothing to resolve.
func (e *Enhancer) ResolveQuote(ctx context.Context, messageID string) (string, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return "", ErrNoSource
	}
	if e.fetcher == nil {
		return "", nil
	}
	records, err := e.fetcher.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	parentID := strings.TrimSpace(records[0].ParentID)
	if parentID == "" {
		return "", nil
	}
	parents, err := e.fetcher.GetMessage(ctx, parentID)
	if err != nil {
		return "", err
	}
	contents := make([]string, 0, len(parents))
	for _, record := range parents {
		if text := e.recordText(record); text != "" {
			contents = append(contents, text)
		}
	}
	if len(contents) == 0 {
		return "", nil
	}
	return strings.Join(contents, "\n"), nil
}

func (e *Enhancer) recordText(record FetchedRecord) string {
	if record.Body == "" {
		return ""
	}
	switch record.Type {
	case RecordText:
		text, ok := decodeTextBody(record.Body)
		if !ok {
			e.logger.Debug("text body is not structured, using raw content", slog.String("message_id", record.ID))
		}
		return text
	case RecordPost:
		text, ok := flattenPostBody(record.Body)
		if !ok {
			e.logger.Debug("post body is not structured, using raw content", slog.String("message_id", record.ID))
		}
		return text
	default:
		return ""
	}
}

// decodeTextBody extracts the "text" field of a JSON text body. The raw body
// is returned with ok=false when it has no such field.
func decodeTextBody(body string) (string, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return body, false
	}
	text, ok := payload["text"].(string)
	if !ok {
		return body, false
	}
	return text, true
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

type postElement struct {
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Href     string `json:"href"`
	UserName string `json:"user_name"`
}

// flattenPostBody renders a rich text body as plain text, one line per paragraph.
func flattenPostBody(body string) (string, bool) {
	var post postBody
	if err := json.Unmarshal([]byte(body), &post); err != nil {
		return body, false
	}
	if post.Title == "" && len(post.Content) == 0 {
		return body, false
	}
	lines := make([]string, 0, len(post.Content)+1)
	if title := strings.TrimSpace(post.Title); title != "" {
		lines = append(lines, title)
	}
	for _, paragraph := range post.Content {
		var b strings.Builder
		for _, el := range paragraph {
			switch el.Tag {
			case "text", "md":
				b.WriteString(el.Text)
			case "a":
				if el.Text != "" {
					b.WriteString(el.Text)
				} else {
					b.WriteString(el.Href)
				}
			case "at":
				if el.UserName != "" {
					b.WriteString("@" + el.UserName)
				}
			}
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), true
}
