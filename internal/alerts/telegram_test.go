package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxtrade/fluxtrader/internal/config"
)

type fakeBotAPI struct {
	sent []tgbotapi.MessageConfig
	errs map[int64]error
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable type")
	}
	if err := f.errs[msg.ChatID]; err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func newFakeChannel(api *fakeBotAPI, chatIDs ...int64) *TelegramChannel {
	return &TelegramChannel{
		api:     api,
		chatIDs: chatIDs,
		logger:  config.NewLogger("alerts_telegram_test"),
	}
}

func testAlert() Alert {
	return Alert{
		Severity:  SeverityCritical,
		Title:     "Order execution failed",
		Message:   "BTC BUY failed after 3 attempts",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewTelegramChannel_RequiresToken(t *testing.T) {
	_, err := NewTelegramChannel("", []int64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestTelegramChannel_SendsToAllChats(t *testing.T) {
	api := &fakeBotAPI{}
	ch := newFakeChannel(api, 100, 200)

	require.NoError(t, ch.Send(context.Background(), testAlert()))

	require.Len(t, api.sent, 2)
	assert.Equal(t, int64(100), api.sent[0].ChatID)
	assert.Equal(t, int64(200), api.sent[1].ChatID)
	assert.Contains(t, api.sent[0].Text, "Order execution failed")
	assert.Contains(t, api.sent[0].Text, "BTC BUY failed after 3 attempts")
	assert.Equal(t, tgbotapi.ModeMarkdown, api.sent[0].ParseMode)
}

func TestTelegramChannel_PartialDeliverySucceeds(t *testing.T) {
	api := &fakeBotAPI{errs: map[int64]error{100: errors.New("blocked by user")}}
	ch := newFakeChannel(api, 100, 200)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(200), api.sent[0].ChatID)
}

func TestTelegramChannel_AllChatsFailing(t *testing.T) {
	api := &fakeBotAPI{errs: map[int64]error{100: errors.New("api down")}}
	ch := newFakeChannel(api, 100)

	err := ch.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to deliver alert to any chat")
}

func TestTelegramChannel_NoChatsConfigured(t *testing.T) {
	api := &fakeBotAPI{}
	ch := newFakeChannel(api)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	assert.Empty(t, api.sent)
}

func TestTelegramChannel_HonorsCancelledContext(t *testing.T) {
	api := &fakeBotAPI{}
	ch := newFakeChannel(api, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, ch.Send(ctx, testAlert()), context.Canceled)
	assert.Empty(t, api.sent)
}

func TestFormatAlert_SeverityEmoji(t *testing.T) {
	tests := []struct {
		severity string
		emoji    string
	}{
		{SeverityCritical, "🚨"},
		{SeverityWarning, "⚠️"},
		{SeverityInfo, "ℹ️"},
		{"other", "📢"},
	}

	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			a := testAlert()
			a.Severity = tt.severity
			text := formatAlert(a)
			assert.True(t, strings.HasPrefix(text, tt.emoji), "got %q", text)
		})
	}
}
