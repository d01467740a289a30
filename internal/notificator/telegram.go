package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/pactum/pkg/logger"
)

// TelegramNotificator posts operator messages to a single chat.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	chatID int64
}

func NewTelegramNotificator(logger *logger.Logger, token string, chatID int64, options ...bot.Option) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger.Named("telegram"),
		chatID: chatID,
	}
	opts := append([]bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}, options...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b

	return provider, nil
}

// Start polls for updates until ctx is cancelled.
func (t *TelegramNotificator) Start(ctx context.Context) {
	t.bot.Start(ctx)
}

func (t *TelegramNotificator) Send(ctx context.Context, message string) error {
	if t.chatID == 0 {
		return fmt.Errorf("telegram chat id is not configured")
	}
	return t.send(ctx, t.chatID, message)
}

func (t *TelegramNotificator) send(ctx context.Context, chatID int64, message string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// handler answers /start with the chat id to put into TELEGRAM_CHAT_ID.
func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	t.logger.Debug("Telegram update: ", update.Message.From.Username, " ", update.Message.Text)
	if update.Message.Text != "/start" {
		return
	}

	chatID := update.Message.Chat.ID
	if chatID == t.chatID {
		if err := t.send(ctx, chatID, "This chat already receives subscription notifications."); err != nil {
			t.logger.Error("Failed to answer /start: ", err)
		}
		return
	}
	if err := t.send(ctx, chatID, fmt.Sprintf("Set TELEGRAM_CHAT_ID=%d to receive subscription notifications here.", chatID)); err != nil {
		t.logger.Error("Failed to answer /start: ", err)
	}
}
