// Package notify delivers out-of-band alerts via Telegram.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tokenkeeper/tokenkeeper/internal/config"
)

// Telegram sends one-off messages to a single chat. Each Send creates a
// fresh bot session; the daemon sends alerts rarely enough that keeping
// a connection open is not worth it.
type Telegram struct {
	token  string
	chatID int64
}

// NewTelegram creates a notifier from configuration. Returns nil when
// notifications are disabled, which callers treat as "no notifier".
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	if !cfg.Enabled {
		return nil
	}
	return &Telegram{token: strings.TrimSpace(cfg.BotToken), chatID: cfg.ChatID}
}

// Notify sends a single message.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	if t.token == "" || t.chatID == 0 || strings.TrimSpace(message) == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram session: %w", err)
	}

	msg := tgbotapi.NewMessage(t.chatID, message)
	msg.ParseMode = "Markdown"
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
