package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lark-enhance/internal/enhance"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultFeishuMode, cfg.Feishu.Mode)
	assert.Equal(t, enhance.DefaultPreviewHost, cfg.Enhance.PreviewHost)
	assert.Equal(t, "http://127.0.0.1:8081", cfg.AgentGateway.BaseURL())
	assert.Equal(t, 60*time.Second, cfg.AgentGateway.Timeout())
	assert.Equal(t, DefaultBridgeWorkers, cfg.Bridge.Workers)
	assert.Error(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[log]
level = "debug"

[feishu]
app_id = "cli_1"
app_secret = "s"
mode = "webhook"

[enhance]
locale = "zh-CN"
image_label = "picture"

[agent_gateway]
host = "gateway"
port = 9000
timeout_seconds = 5

[bridge]
workers = 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Feishu.WebhookMode())
	assert.Equal(t, "http://gateway:9000", cfg.AgentGateway.BaseURL())
	assert.Equal(t, 5*time.Second, cfg.AgentGateway.Timeout())
	assert.Equal(t, 8, cfg.Bridge.Workers)
	assert.Equal(t, DefaultBridgeQueue, cfg.Bridge.QueueSize)

	phrases := cfg.Enhance.Phrases()
	assert.Equal(t, "picture", phrases.ImageLabel)
	assert.Equal(t, enhance.PhrasesFor("zh").DefaultGreeting, phrases.DefaultGreeting)

	ch := cfg.Feishu.ChannelConfig()
	assert.Equal(t, "cli_1", ch.BotID)
	assert.Equal(t, "webhook", ch.Credentials["mode"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, "[feishu]\napp_idd = \"typo\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feishu.app_idd")
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, "[log\n"))
	assert.Error(t, err)
}

func TestValidateMode(t *testing.T) {
	t.Parallel()

	cfg := Config{Feishu: FeishuConfig{AppID: "a", AppSecret: "b", Mode: "poll"}}
	assert.Error(t, cfg.Validate())
	cfg.Feishu.Mode = "ws"
	assert.NoError(t, cfg.Validate())
}
