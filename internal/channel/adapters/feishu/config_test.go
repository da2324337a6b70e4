package feishu

import (
	"testing"

	lark "github.com/larksuite/oapi-sdk-go/v3"
)

func TestNormalizeConfig(t *testing.T) {
	t.Parallel()

	got, err := NormalizeConfig(map[string]any{
		"app_id":             "app",
		"app_secret":         "secret",
		"encrypt_key":        "enc",
		"verification_token": "verify",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got["appId"] != "app" || got["appSecret"] != "secret" {
		t.Fatalf("unexpected feishu config: %#v", got)
	}
	if got["encryptKey"] != "enc" || got["verificationToken"] != "verify" {
		t.Fatalf("unexpected feishu security config: %#v", got)
	}
	if got["mode"] != ModeWebSocket || got["baseUrl"] != lark.FeishuBaseUrl {
		t.Fatalf("unexpected defaults: %#v", got)
	}
}

func TestNormalizeConfigRequiresApp(t *testing.T) {
	t.Parallel()

	_, err := NormalizeConfig(map[string]any{})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestParseConfigMode(t *testing.T) {
	t.Parallel()

	cfg, err := parseConfig(map[string]any{
		"appId":     "app",
		"appSecret": "secret",
		"mode":      " Webhook ",
		"baseUrl":   "https://open.larksuite.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != ModeWebhook || cfg.BaseURL != "https://open.larksuite.com" {
		t.Fatalf("unexpected config: %#v", cfg)
	}

	_, err = parseConfig(map[string]any{"appId": "app", "appSecret": "secret", "mode": "poll"})
	if err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}
