package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"
)

const (
	DefaultTelegramAPI = "https://api.telegram.org"
	DefaultResendAPI   = "https://api.resend.com/emails"
)

// Provider 通过具体渠道发送渲染后的消息
type Provider interface {
	Send(ctx context.Context, cfg ChannelConfig, msg Message) error
}

// Registry 渠道类型到发送器的映射
type Registry map[string]Provider

// NewRegistry 创建所有支持渠道的发送器
func NewRegistry(client *http.Client) Registry {
	if client == nil {
		client = &http.Client{}
	}
	return Registry{
		ChannelTelegram: &TelegramProvider{Client: client, APIURL: DefaultTelegramAPI},
		ChannelResend:   &ResendProvider{Client: client, Endpoint: DefaultResendAPI},
		ChannelFeishu:   &FeishuProvider{Client: client},
		ChannelWeCom:    &WeComProvider{Client: client},
		ChannelWebhook:  &WebhookProvider{Client: client},
	}
}

// Lookup 查找渠道类型对应的发送器
func (r Registry) Lookup(channelType string) (Provider, error) {
	p, ok := r[channelType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, channelType)
	}
	return p, nil
}

func configAs[T ChannelConfig](cfg ChannelConfig) (T, error) {
	c, ok := cfg.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %s config", ErrInvalidChannelConfig, cfg.ChannelType())
	}
	return c, nil
}

// chatRecipient 同时支持 "@channel" 名称和数字ID
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// TelegramProvider Telegram 机器人
type TelegramProvider struct {
	Client *http.Client
	APIURL string
}

func (p *TelegramProvider) Send(ctx context.Context, cfg ChannelConfig, msg Message) error {
	c, err := configAs[TelegramConfig](cfg)
	if err != nil {
		return err
	}

	client := *p.Client
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   c.BotToken,
		URL:     p.APIURL,
		Client:  &client,
		Offline: true,
	})
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}

	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	if _, err := bot.Send(chatRecipient(c.ChatID), text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// ResendProvider 通过 Resend 发送邮件
type ResendProvider struct {
	Client   *http.Client
	Endpoint string
}

func (p *ResendProvider) Send(ctx context.Context, cfg ChannelConfig, msg Message) error {
	c, err := configAs[ResendConfig](cfg)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"from":    c.From,
		"to":      c.To,
		"subject": msg.Subject,
		"text":    msg.Body,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	_, err = postJSON(ctx, p.Client, p.Endpoint, headers, payload)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// FeishuProvider 飞书自定义机器人
type FeishuProvider struct {
	Client *http.Client
}

func (p *FeishuProvider) Send(ctx context.Context, cfg ChannelConfig, msg Message) error {
	c, err := configAs[FeishuConfig](cfg)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"msg_type": "text",
		"content":  map[string]string{"text": joinText(msg)},
	}
	body, err := postJSON(ctx, p.Client, c.WebhookURL, nil, payload)
	if err != nil {
		return fmt.Errorf("feishu: %w", err)
	}
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.Code != 0 {
		return fmt.Errorf("feishu: code %d: %s", resp.Code, resp.Msg)
	}
	return nil
}

// WeComProvider 企业微信群机器人
type WeComProvider struct {
	Client *http.Client
}

func (p *WeComProvider) Send(ctx context.Context, cfg ChannelConfig, msg Message) error {
	c, err := configAs[WeComConfig](cfg)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": joinText(msg)},
	}
	body, err := postJSON(ctx, p.Client, c.WebhookURL, nil, payload)
	if err != nil {
		return fmt.Errorf("wecom: %w", err)
	}
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.ErrCode != 0 {
		return fmt.Errorf("wecom: errcode %d: %s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}

// WebhookProvider 以 JSON 形式推送到任意地址
type WebhookProvider struct {
	Client *http.Client
}

func (p *WebhookProvider) Send(ctx context.Context, cfg ChannelConfig, msg Message) error {
	c, err := configAs[WebhookConfig](cfg)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"event_id":  msg.Event.ID,
		"event":     string(msg.Event.Kind),
		"type":      msg.Event.Target,
		"target_id": msg.Event.TargetID,
		"subject":   msg.Subject,
		"body":      msg.Body,
		"timestamp": msg.Event.Time.UTC().Format(time.RFC3339),
	}
	if _, err := postJSON(ctx, p.Client, c.URL, c.Headers, payload); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func joinText(msg Message) string {
	if msg.Subject == "" {
		return msg.Body
	}
	return fmt.Sprintf("%s\n\n%s", msg.Subject, msg.Body)
}

// postJSON 发送 JSON，2xx 时返回响应体
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}
