package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/bootimgbot/internal/telegram"
)

// Register registers all command and callback handlers on the bot instance.
// Plain text reaches HandleDefault through the bot's default handler.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleHelp)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/download", bot.MatchTypePrefix, h.handleDownload)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, h.handleCancelCommand)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/showfiles", bot.MatchTypePrefix, h.handleShowFiles)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/deletefiles", bot.MatchTypePrefix, h.handleDeleteFiles)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stat", bot.MatchTypePrefix, h.handleStat)

	// Confirmation callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackDownload, bot.MatchTypeExact, h.handleDownloadCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackRename, bot.MatchTypeExact, h.handleRenameCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackCancel, bot.MatchTypeExact, h.handleCancelCallback)
}

// HandleDefault receives every update no registered handler matched.
func (h *Handler) HandleDefault(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	// Unknown commands
	if strings.HasPrefix(update.Message.Text, "/") {
		return
	}
	h.handleText(ctx, b, update)
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		slog.Error("send reply", "error", err, "chat_id", chatID)
	}
}

func (h *Handler) answer(ctx context.Context, b *bot.Bot, query *models.CallbackQuery, text string) {
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            text,
	})
}

func (h *Handler) logError(ctx context.Context, err error, where string) {
	slog.Error(where, "error", err)
	if h.tgLogger != nil {
		h.tgLogger.LogError(ctx, err, where)
	}
}

// callbackMessage returns the chat and message a callback button belongs to.
func callbackMessage(query *models.CallbackQuery) (chatID int64, messageID int, ok bool) {
	msg := query.Message.Message
	if msg == nil {
		return 0, 0, false
	}
	return msg.Chat.ID, msg.ID, true
}
