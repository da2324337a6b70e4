package feishu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// sdkLogger forwards lark SDK log lines to slog.
type sdkLogger struct {
	logger *slog.Logger
}

func newLarkSlogLogger(logger *slog.Logger) larkcore.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &sdkLogger{logger: logger.With(slog.String("source", "lark_sdk"))}
}

func (l *sdkLogger) Debug(ctx context.Context, args ...any) { l.log(ctx, slog.LevelDebug, args) }
func (l *sdkLogger) Info(ctx context.Context, args ...any)  { l.log(ctx, slog.LevelInfo, args) }
func (l *sdkLogger) Warn(ctx context.Context, args ...any)  { l.log(ctx, slog.LevelWarn, args) }
func (l *sdkLogger) Error(ctx context.Context, args ...any) { l.log(ctx, slog.LevelError, args) }

func (l *sdkLogger) log(ctx context.Context, level slog.Level, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, "feishu sdk", slog.String("detail", strings.TrimSpace(fmt.Sprint(args...))))
}
