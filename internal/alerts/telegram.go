package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
)

// botAPI is the slice of tgbotapi.BotAPI the channel uses; tests
// substitute a fake.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel delivers alerts to one or more Telegram chats.
type TelegramChannel struct {
	api     botAPI
	chatIDs []int64
	logger  zerolog.Logger
}

// NewTelegramChannel connects the bot and verifies the token.
func NewTelegramChannel(botToken string, chatIDs []int64) (*TelegramChannel, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger := config.NewLogger("alerts_telegram")
	logger.Info().
		Str("bot_username", api.Self.UserName).
		Int("chats", len(chatIDs)).
		Msg("Telegram channel initialized")

	return &TelegramChannel{api: api, chatIDs: chatIDs, logger: logger}, nil
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Send formats and delivers the alert to every configured chat. It
// succeeds if at least one chat received it.
func (t *TelegramChannel) Send(ctx context.Context, alert Alert) error {
	if len(t.chatIDs) == 0 {
		t.logger.Warn().Msg("No Telegram chats configured, dropping alert")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := formatAlert(alert)

	delivered := 0
	var lastErr error
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown

		if _, err := t.api.Send(msg); err != nil {
			t.logger.Error().
				Err(err).
				Int64("chat_id", chatID).
				Str("title", alert.Title).
				Msg("Telegram send failed")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("failed to deliver alert to any chat: %w", lastErr)
	}
	return nil
}

func formatAlert(alert Alert) string {
	emoji := "📢"
	switch alert.Severity {
	case SeverityCritical:
		emoji = "🚨"
	case SeverityWarning:
		emoji = "⚠️"
	case SeverityInfo:
		emoji = "ℹ️"
	}

	return fmt.Sprintf("%s *%s*\n\n%s\n\n_%s_",
		emoji, alert.Title, alert.Message,
		alert.Timestamp.Format("2006-01-02 15:04:05 MST"))
}
