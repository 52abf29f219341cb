package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/bootimgbot/internal/config"
)

// Messenger sends workflow messages through the bot API.
type Messenger struct {
	bot *bot.Bot
}

func NewMessenger(b *bot.Bot) *Messenger {
	return &Messenger{bot: b}
}

func (m *Messenger) Send(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return msg.ID, nil
}

func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	return m.edit(ctx, chatID, messageID, text, nil)
}

func (m *Messenger) EditProgress(ctx context.Context, chatID int64, messageID int, text string) error {
	return m.edit(ctx, chatID, messageID, text, CancelKeyboard())
}

func (m *Messenger) edit(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	_, err := m.bot.EditMessageText(ctx, params)
	if err != nil && isNotModified(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (m *Messenger) SendDocument(ctx context.Context, chatID int64, name string, r io.Reader) error {
	_, err := m.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: name, Data: r},
	})
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (m *Messenger) SendLink(ctx context.Context, chatID int64, text, label, link string) error {
	_, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: LinkKeyboard(label, link),
	})
	if err != nil {
		return fmt.Errorf("send link: %w", err)
	}
	return nil
}

// SendLongMessage sends text that may exceed the message limit in parts.
func SendLongMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) error {
	for _, part := range SplitMessage(text, config.MaxTelegramMessageLen) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		}); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// SendHTML sends an HTML formatted message, falling back to plain text
// when Telegram rejects the markup.
func SendHTML(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) (*models.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	msg, err := b.SendMessage(ctx, params)
	if err == nil {
		return msg, nil
	}

	slog.Warn("html send failed, falling back to plain text", "error", err)
	params.ParseMode = ""
	return b.SendMessage(ctx, params)
}

// isNotModified matches the API error for an edit that changes nothing.
func isNotModified(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "message is not modified")
}
