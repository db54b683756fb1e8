// Package notify alerts shop staff when a customer asks for a person.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tienditabot/internal/domain"
)

type TelegramConfig struct {
	Token  string
	ChatID int64
	// APIEndpoint overrides tgbotapi.APIEndpoint ("https://api.telegram.org/bot%s/%s").
	APIEndpoint string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Telegram implements domain.HandoffNotifier by messaging a staff chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegram connects to the Bot API (getMe) and returns a notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram notifier needs a token and a chat id")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram notifier connected", "username", bot.Self.UserName, "chat", cfg.ChatID)

	return &Telegram{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

// NotifyHandoff tells staff who is waiting and how to reach them.
func (t *Telegram) NotifyHandoff(ctx context.Context, ev domain.InboundEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, HandoffText(ev))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.logger.Info("handoff alert sent", "from", ev.From)
	return nil
}

// HandoffText is the plain-text alert for a hand-off request.
func HandoffText(ev domain.InboundEvent) string {
	var sb strings.Builder
	sb.WriteString("🤝 Un cliente quiere hablar con una persona\n")
	if ev.SenderName != "" {
		fmt.Fprintf(&sb, "Nombre: %s\n", ev.SenderName)
	}
	fmt.Fprintf(&sb, "Teléfono: +%s\n", strings.TrimPrefix(ev.From, "+"))
	if ev.Text != "" {
		fmt.Fprintf(&sb, "Botón: %s\n", ev.Text)
	}
	fmt.Fprintf(&sb, "Chat: https://wa.me/%s", strings.TrimPrefix(ev.From, "+"))
	return sb.String()
}
