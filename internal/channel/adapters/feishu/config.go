package feishu

import (
	"errors"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"

	"github.com/memohai/lark-enhance/internal/channel"
)

// Connection modes.
const (
	ModeWebSocket = "ws"
	ModeWebhook   = "webhook"
)

// Config is the decoded Feishu credential set of a channel config.
type Config struct {
	AppID             string
	AppSecret         string
	EncryptKey        string
	VerificationToken string
	Mode              string
	BaseURL           string
}

func parseConfig(raw map[string]any) (Config, error) {
	cfg := Config{
		AppID:             strings.TrimSpace(channel.ReadString(raw, "appId", "app_id")),
		AppSecret:         strings.TrimSpace(channel.ReadString(raw, "appSecret", "app_secret")),
		EncryptKey:        strings.TrimSpace(channel.ReadString(raw, "encryptKey", "encrypt_key")),
		VerificationToken: strings.TrimSpace(channel.ReadString(raw, "verificationToken", "verification_token")),
		Mode:              strings.ToLower(strings.TrimSpace(channel.ReadString(raw, "mode"))),
		BaseURL:           strings.TrimSpace(channel.ReadString(raw, "baseUrl", "base_url")),
	}
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return Config{}, errors.New("feishu appId and appSecret are required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeWebSocket
	case ModeWebSocket, ModeWebhook:
	default:
		return Config{}, fmt.Errorf("unsupported feishu mode: %s", cfg.Mode)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = lark.FeishuBaseUrl
	}
	return cfg, nil
}

// NormalizeConfig validates raw credentials and returns them in canonical form.
func NormalizeConfig(raw map[string]any) (map[string]any, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"appId":     cfg.AppID,
		"appSecret": cfg.AppSecret,
		"mode":      cfg.Mode,
		"baseUrl":   cfg.BaseURL,
	}
	if cfg.EncryptKey != "" {
		out["encryptKey"] = cfg.EncryptKey
	}
	if cfg.VerificationToken != "" {
		out["verificationToken"] = cfg.VerificationToken
	}
	return out, nil
}
