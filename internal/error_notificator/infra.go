package error_notificator

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// лимит Telegram на текст сообщения
const maxMessageRunes = 4096

type Infra struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewInfra поднимает бота по токену. chatID — чат администратора.
func NewInfra(token, chatID string) (*Infra, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("admin chat id %q: %w", chatID, err)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Infra{bot: bot, chatID: id}, nil
}

func (i *Infra) Notify(ctx context.Context, source string, err error, details string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	msg := tgbotapi.NewMessage(i.chatID, formatMessage(source, err, details))
	if _, sendErr := i.bot.Send(msg); sendErr != nil {
		return fmt.Errorf("telegram send: %w", sendErr)
	}
	return nil
}

func formatMessage(source string, err error, details string) string {
	text := fmt.Sprintf("❗ Ошибка в echolite (%s)\n\nОшибка: %v\n\nДетали: %s", source, err, details)
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxMessageRunes-1]) + "…"
}

// NopInfra — когда Telegram не настроен.
type NopInfra struct{}

func (NopInfra) Notify(context.Context, string, error, string) error { return nil }
