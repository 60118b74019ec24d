package alert

import (
	"fmt"
	"strconv"
	"strings"
)

// 渠道类型
const (
	ChannelTelegram = "telegram"
	ChannelResend   = "resend"
	ChannelFeishu   = "feishu"
	ChannelWeCom    = "wecom"
	ChannelWebhook  = "webhook"
)

// ChannelConfig 各渠道的类型化配置
type ChannelConfig interface {
	ChannelType() string
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type ResendConfig struct {
	APIKey string
	From   string
	To     []string
}

type FeishuConfig struct {
	WebhookURL string
}

type WeComConfig struct {
	WebhookURL string
}

type WebhookConfig struct {
	URL     string
	Headers map[string]string
}

func (TelegramConfig) ChannelType() string { return ChannelTelegram }
func (ResendConfig) ChannelType() string   { return ChannelResend }
func (FeishuConfig) ChannelType() string   { return ChannelFeishu }
func (WeComConfig) ChannelType() string    { return ChannelWeCom }
func (WebhookConfig) ChannelType() string  { return ChannelWebhook }

// DecodeConfig 将渠道存储的 JSON 配置解析为对应类型
func DecodeConfig(channelType string, raw map[string]interface{}) (ChannelConfig, error) {
	switch channelType {
	case ChannelTelegram:
		cfg := TelegramConfig{BotToken: field(raw, "botToken"), ChatID: field(raw, "chatId")}
		if cfg.BotToken == "" || cfg.ChatID == "" {
			return nil, fmt.Errorf("%w: telegram requires botToken and chatId", ErrInvalidChannelConfig)
		}
		return cfg, nil
	case ChannelResend:
		cfg := ResendConfig{APIKey: field(raw, "apiKey"), From: field(raw, "from"), To: splitList(field(raw, "to"))}
		if cfg.APIKey == "" || cfg.From == "" || len(cfg.To) == 0 {
			return nil, fmt.Errorf("%w: resend requires apiKey, from and to", ErrInvalidChannelConfig)
		}
		return cfg, nil
	case ChannelFeishu:
		cfg := FeishuConfig{WebhookURL: field(raw, "webhookUrl")}
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("%w: feishu requires webhookUrl", ErrInvalidChannelConfig)
		}
		return cfg, nil
	case ChannelWeCom:
		cfg := WeComConfig{WebhookURL: field(raw, "webhookUrl")}
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("%w: wecom requires webhookUrl", ErrInvalidChannelConfig)
		}
		return cfg, nil
	case ChannelWebhook:
		cfg := WebhookConfig{URL: field(raw, "url"), Headers: map[string]string{}}
		if headers, ok := raw["headers"].(map[string]interface{}); ok {
			for k, v := range headers {
				cfg.Headers[k] = stringify(v)
			}
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: webhook requires url", ErrInvalidChannelConfig)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, channelType)
	}
}

func field(raw map[string]interface{}, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

// stringify 保持 -1001234 这类数字 chat id 不变
func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, stringify(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
