// File: internal/notifier/telegram.go

// Package notifier delivers run progress to Telegram. Delivery is best
// effort: a lost notification never aborts an application run.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sbhusal-dev/meroapply/internal/config"
)

const telegramAPIBase = "https://api.telegram.org"

// Notifier is the outbound notification contract used by the orchestrator.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Telegram sends HTML formatted messages through the Telegram Bot API.
type Telegram struct {
	client  *resty.Client
	token   string
	chatID  string
	enabled bool
	logger  *zap.Logger
}

// NewTelegram creates a Telegram notifier. When the config disables
// notifications the notifier turns into a logging no-op.
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) *Telegram {
	client := resty.New().
		SetBaseURL(telegramAPIBase).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2)

	return &Telegram{
		client:  client,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		enabled: cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		logger:  logger.Named("notifier"),
	}
}

// Notify sends one message. Failures are logged and swallowed; the caller's
// flow never depends on delivery.
func (t *Telegram) Notify(ctx context.Context, message string) {
	if !t.enabled {
		t.logger.Debug("Notification suppressed (notifier disabled).")
		return
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       message,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))

	if err != nil {
		t.logger.Warn("Could not send Telegram notification.", zap.Error(err))
		return
	}
	if resp.IsError() {
		t.logger.Warn("Telegram API rejected notification.",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", string(resp.Body())))
		return
	}
	t.logger.Debug("Telegram notification sent.")
}

// EscapeHTML makes arbitrary portal text safe for parse_mode=HTML messages.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
