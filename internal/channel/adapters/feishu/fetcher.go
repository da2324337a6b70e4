package feishu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/lark-enhance/internal/enhance"
)

type messageGetter interface {
	Get(ctx context.Context, req *larkim.GetMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.GetMessageResp, error)
}

type getMessageFunc func(ctx context.Context, messageID string) (*larkim.GetMessageResp, error)

// Fetcher reads message records through the IM message API.
type Fetcher struct {
	get    getMessageFunc
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. Pass client.Im.V1.Message of a lark client.
func NewFetcher(log *slog.Logger, getter messageGetter) *Fetcher {
	var get getMessageFunc
	if getter != nil {
		get = func(ctx context.Context, messageID string) (*larkim.GetMessageResp, error) {
			return getter.Get(ctx, larkim.NewGetMessageReqBuilder().MessageId(messageID).Build())
		}
	}
	return newFetcher(log, get)
}

func newFetcher(log *slog.Logger, get getMessageFunc) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		get:    get,
		logger: log.With(slog.String("component", "feishu_fetcher")),
	}
}

var _ enhance.Fetcher = (*Fetcher)(nil)

func (f *Fetcher) GetMessage(ctx context.Context, messageID string) ([]enhance.FetchedRecord, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, errors.New("message id is required")
	}
	if f.get == nil {
		return nil, errors.New("feishu message client not configured")
	}
	resp, err := f.get(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("get message %s: empty response", messageID)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get message %s failed: %s (code: %d)", messageID, resp.Msg, resp.Code)
	}
	if resp.Data == nil {
		return nil, nil
	}
	records := make([]enhance.FetchedRecord, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		if item == nil {
			continue
		}
		records = append(records, toRecord(item))
	}
	f.logger.Debug("message fetched", slog.String("message_id", messageID), slog.Int("records", len(records)))
	return records, nil
}

func toRecord(item *larkim.Message) enhance.FetchedRecord {
	record := enhance.FetchedRecord{
		ID:       deref(item.MessageId),
		ParentID: deref(item.ParentId),
		Type:     deref(item.MsgType),
	}
	if item.Body != nil {
		if item.Body.Content != nil {
			record.Body = *item.Body.Content
		}
	}
	return record
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
