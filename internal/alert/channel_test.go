package alert

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		raw     map[string]interface{}
		want    ChannelConfig
		wantErr error
	}{
		{
			name: "telegram numeric chat",
			typ:  ChannelTelegram,
			raw:  map[string]interface{}{"botToken": "123:abc", "chatId": float64(-1001234567)},
			want: TelegramConfig{BotToken: "123:abc", ChatID: "-1001234567"},
		},
		{
			name:    "telegram missing chat",
			typ:     ChannelTelegram,
			raw:     map[string]interface{}{"botToken": "123:abc"},
			wantErr: ErrInvalidChannelConfig,
		},
		{
			name: "resend list",
			typ:  ChannelResend,
			raw:  map[string]interface{}{"apiKey": "re_1", "from": "ops@example.com", "to": "a@example.com, b@example.com"},
			want: ResendConfig{APIKey: "re_1", From: "ops@example.com", To: []string{"a@example.com", "b@example.com"}},
		},
		{
			name: "feishu",
			typ:  ChannelFeishu,
			raw:  map[string]interface{}{"webhookUrl": "https://open.feishu.cn/hook/x"},
			want: FeishuConfig{WebhookURL: "https://open.feishu.cn/hook/x"},
		},
		{
			name:    "wecom empty",
			typ:     ChannelWeCom,
			raw:     map[string]interface{}{},
			wantErr: ErrInvalidChannelConfig,
		},
		{
			name: "webhook headers",
			typ:  ChannelWebhook,
			raw: map[string]interface{}{
				"url":     "https://hooks.example.com",
				"headers": map[string]interface{}{"X-Token": "t", "X-Retry": float64(3)},
			},
			want: WebhookConfig{URL: "https://hooks.example.com", Headers: map[string]string{"X-Token": "t", "X-Retry": "3"}},
		},
		{
			name:    "unsupported",
			typ:     "pager",
			raw:     map[string]interface{}{},
			wantErr: ErrUnsupportedChannel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConfig(tt.typ, tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeConfig: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("config = %#v, want %#v", got, tt.want)
			}
		})
	}
}
