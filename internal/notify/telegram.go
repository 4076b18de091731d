package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxRetries = 3

// TelegramSender delivers notifications through the Telegram Bot API.
type TelegramSender struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	retryDelay time.Duration
}

// NewTelegramSender creates a TelegramSender. endpoint is the Bot API
// endpoint format and defaults to tgbotapi.APIEndpoint. Creating the sender
// verifies the token with getMe.
func NewTelegramSender(token, chatID, endpoint string) (*TelegramSender, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: id, retryDelay: time.Second}, nil
}

// Send posts the title in bold followed by the message, retrying with a
// linear backoff.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, "*"+escapeMarkdownV2(title)+"*\n"+escapeMarkdownV2(message))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for attempt := 1; attempt <= telegramMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == telegramMaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("telegram: send after %d attempts: %w", telegramMaxRetries, lastErr)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

var markdownV2Escaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}
