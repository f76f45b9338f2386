// Package alert notifies operators about conditions that need a human,
// such as a paid registration the CMS refused to update.
package alert

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iliyamo/festival-registration/internal/config"
)

// Notifier sends a short text alert.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New returns a TelegramNotifier when both the bot token and the chat id
// are configured, a LogNotifier otherwise.  A bot that fails to initialise
// is logged and replaced by the LogNotifier.
func New(cfg config.TelegramConfig) Notifier {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return LogNotifier{}
	}
	n, err := NewTelegram(cfg.BotToken, cfg.ChatID)
	if err != nil {
		log.Printf("alert: telegram disabled: %v", err)
		return LogNotifier{}
	}
	return n
}

// TelegramNotifier posts alerts to a chat through the Bot API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot and returns a notifier for chatID.
func NewTelegram(token string, chatID int64) (*TelegramNotifier, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	return &TelegramNotifier{bot: b, chatID: chatID}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := n.bot.Send(msg)
	return err
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	log.Printf("alert: %s", text)
	return nil
}
