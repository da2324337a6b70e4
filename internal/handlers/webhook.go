package handlers

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// WebhookHandler mounts the Feishu event callback. The underlying handler is
// attached once the channel connection is up; until then requests get 503.
type WebhookHandler struct {
	logger *slog.Logger
	path   string

	mu      sync.RWMutex
	handler http.Handler
}

func NewWebhookHandler(log *slog.Logger, path string) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		path = "/webhook/feishu"
	}
	return &WebhookHandler{logger: log.With(slog.String("handler", "webhook")), path: path}
}

// Attach sets the event callback. A nil handler detaches it.
func (h *WebhookHandler) Attach(handler http.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST(h.path, h.Handle)
}

func (h *WebhookHandler) Handle(c echo.Context) error {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler == nil {
		h.logger.Warn("webhook called before connection is ready")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: "channel not connected"})
	}
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
