package services

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TelegramService struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegramService authenticates the bot token against the Bot API.
func NewTelegramService(botToken string, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("[tg] authorized", zap.String("bot", bot.Self.UserName))
	return &TelegramService{bot: bot, logger: logger}, nil
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.bot == nil || chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("[tg][send][err]", zap.Int64("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SetWebhook points the bot at url and registers secret, which Telegram
// echoes in the X-Telegram-Bot-Api-Secret-Token header. An empty url is a
// no-op.
func (t *TelegramService) SetWebhook(url, secret string) error {
	if url == "" {
		return nil
	}
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	t.logger.Info("[tg] webhook registered", zap.String("url", url))
	return nil
}
