package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/enhance"
)

// EnhanceHandler exposes the classifier and the response normalizer for
// inspection. Neither endpoint fetches quoted messages.
type EnhanceHandler struct {
	logger     *slog.Logger
	normalizer *enhance.Normalizer
}

type NormalizeRequest struct {
	Text string `json:"text"`
}

type NormalizeResponse struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
}

type ClassifyRequest struct {
	Parts []channel.MessagePart `json:"parts"`
}

type ClassifyResponse struct {
	Verdict  string `json:"verdict"`
	SourceID string `json:"source_id,omitempty"`
}

func NewEnhanceHandler(log *slog.Logger, normalizer *enhance.Normalizer) *EnhanceHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EnhanceHandler{logger: log.With(slog.String("handler", "enhance")), normalizer: normalizer}
}

func (h *EnhanceHandler) Register(e *echo.Echo) {
	group := e.Group("/enhance")
	group.POST("/normalize", h.Normalize)
	group.POST("/classify", h.Classify)
}

// Normalize runs the response normalizer over the request text.
func (h *EnhanceHandler) Normalize(c echo.Context) error {
	var req NormalizeRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("invalid normalize request", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	text, ok := h.normalizer.Normalize(req.Text)
	return c.JSON(http.StatusOK, NormalizeResponse{Text: text, Changed: ok && text != req.Text})
}

// Classify returns the verdict for the given message parts.
func (h *EnhanceHandler) Classify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("invalid classify request", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result := enhance.Classify(channel.Message{Parts: req.Parts})
	return c.JSON(http.StatusOK, ClassifyResponse{Verdict: result.Verdict.String(), SourceID: result.SourceID})
}
