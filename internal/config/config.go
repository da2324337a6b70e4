// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/memohai/lark-enhance/internal/channel"
	"github.com/memohai/lark-enhance/internal/enhance"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultFeishuMode     = "ws"
	DefaultLocale         = "en"
	DefaultGatewayHost    = "127.0.0.1"
	DefaultGatewayPort    = 8081
	DefaultGatewayTimeout = 60
	DefaultBridgeWorkers  = 4
	DefaultBridgeQueue    = 64
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Feishu       FeishuConfig       `toml:"feishu"`
	Enhance      EnhanceConfig      `toml:"enhance"`
	AgentGateway AgentGatewayConfig `toml:"agent_gateway"`
	Bridge       BridgeConfig       `toml:"bridge"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address and the optional HS256
// secret guarding the inspection endpoints.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	JWTSecret string `toml:"jwt_secret"`
}

// FeishuConfig holds the bot app credentials and the event delivery mode
// (ws or webhook).
type FeishuConfig struct {
	BotID             string `toml:"bot_id"`
	AppID             string `toml:"app_id"`
	AppSecret         string `toml:"app_secret"`
	EncryptKey        string `toml:"encrypt_key"`
	VerificationToken string `toml:"verification_token"`
	Mode              string `toml:"mode"`
	BaseURL           string `toml:"base_url"`
}

// Credentials returns the adapter credential map.
func (c FeishuConfig) Credentials() map[string]any {
	return map[string]any{
		"appId":             c.AppID,
		"appSecret":         c.AppSecret,
		"encryptKey":        c.EncryptKey,
		"verificationToken": c.VerificationToken,
		"mode":              c.Mode,
		"baseUrl":           c.BaseURL,
	}
}

// ChannelConfig returns the channel config of the configured bot.
func (c FeishuConfig) ChannelConfig() channel.ChannelConfig {
	botID := strings.TrimSpace(c.BotID)
	if botID == "" {
		botID = c.AppID
	}
	return channel.ChannelConfig{
		ID:          "feishu:" + botID,
		BotID:       botID,
		ChannelType: "feishu",
		Credentials: c.Credentials(),
	}
}

// WebhookMode reports whether events arrive over HTTP callbacks.
func (c FeishuConfig) WebhookMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), "webhook")
}

// EnhanceConfig holds the enhance plugin settings. Empty phrase fields keep
// the locale defaults.
type EnhanceConfig struct {
	Locale            string `toml:"locale"`
	PreviewHost       string `toml:"preview_host"`
	ViewerHost        string `toml:"viewer_host"`
	ForwardQuotes     bool   `toml:"forward_quotes"`
	DefaultGreeting   string `toml:"default_greeting"`
	UnsupportedNotice string `toml:"unsupported_notice"`
	DiagramLabel      string `toml:"diagram_label"`
	ImageLabel        string `toml:"image_label"`
}

// Phrases returns the locale phrases with configured overrides applied.
func (c EnhanceConfig) Phrases() enhance.Phrases {
	return enhance.PhrasesFor(c.Locale).Merge(enhance.Phrases{
		DefaultGreeting:   c.DefaultGreeting,
		UnsupportedNotice: c.UnsupportedNotice,
		DiagramLabel:      c.DiagramLabel,
		ImageLabel:        c.ImageLabel,
	})
}

// NormalizerConfig returns the response normalizer settings.
func (c EnhanceConfig) NormalizerConfig() enhance.NormalizerConfig {
	return enhance.NormalizerConfig{
		PreviewHost: c.PreviewHost,
		ViewerHost:  c.ViewerHost,
		Phrases:     c.Phrases(),
	}
}

// AgentGatewayConfig holds the agent gateway host, port and request timeout.
type AgentGatewayConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BaseURL returns the agent gateway base URL (e.g. http://127.0.0.1:8081) from host and port.
func (c AgentGatewayConfig) BaseURL() string {
	host := c.Host
	if host == "" {
		host = DefaultGatewayHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultGatewayPort
	}
	return "http://" + host + ":" + strconv.Itoa(port)
}

func (c AgentGatewayConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultGatewayTimeout * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BridgeConfig sizes the inbound worker pool.
type BridgeConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Feishu: FeishuConfig{
			Mode: DefaultFeishuMode,
		},
		Enhance: EnhanceConfig{
			Locale:      DefaultLocale,
			PreviewHost: enhance.DefaultPreviewHost,
			ViewerHost:  enhance.DefaultViewerHost,
		},
		AgentGateway: AgentGatewayConfig{
			Host:           DefaultGatewayHost,
			Port:           DefaultGatewayPort,
			TimeoutSeconds: DefaultGatewayTimeout,
		},
		Bridge: BridgeConfig{
			Workers:   DefaultBridgeWorkers,
			QueueSize: DefaultBridgeQueue,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return cfg, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Feishu.AppID) == "" || strings.TrimSpace(c.Feishu.AppSecret) == "" {
		return fmt.Errorf("feishu.app_id and feishu.app_secret are required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Feishu.Mode)) {
	case "", "ws", "webhook":
	default:
		return fmt.Errorf("unsupported feishu.mode: %s", c.Feishu.Mode)
	}
	return nil
}
