package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/domain"
	"github.com/set-night/bootimgbot/internal/service"
	"github.com/set-night/bootimgbot/internal/telegram"
)

func (h *Handler) handleDownload(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if _, ok := h.sessions.Get(chatID); ok {
		h.reply(ctx, b, chatID, "⏳ You already have a download in progress. Use /cancel to stop it first.")
		return
	}

	h.sessions.ExpectURL(chatID)
	h.reply(ctx, b, chatID, fmt.Sprintf(
		"📥 Please send me the Fastboot ROM (%s file) URL to start downloading.", h.cfg.Format().Label()))
}

// handleText routes free text by the chat's session phase.
func (h *Handler) handleText(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	phase := h.sessions.Phase(chatID)
	if phase == domain.PhaseRenaming {
		h.applyRename(ctx, b, chatID, text)
		return
	}

	// One session per chat: another URL is refused, never queued.
	if phase != "" && service.ValidateURL(text) == nil {
		h.reply(ctx, b, chatID, "⏳ A download is already active for this chat. Use /cancel to stop it first.")
		return
	}

	if phase == domain.PhaseConfirming && h.cfg.Mode() == domain.ConfirmText {
		h.handleTextConfirmation(ctx, b, chatID, text)
		return
	}

	if h.sessions.IsExpectingURL(chatID) {
		h.handleURL(ctx, b, chatID, text)
	}
}

func (h *Handler) handleURL(ctx context.Context, b *bot.Bot, chatID int64, rawURL string) {
	if err := service.ValidateURL(rawURL); err != nil {
		h.sessions.StopExpectingURL(chatID)
		h.reply(ctx, b, chatID, "❌ Invalid URL. Please send a valid link starting with http:// or https://.")
		return
	}
	if _, ok := h.sessions.Get(chatID); ok {
		h.sessions.StopExpectingURL(chatID)
		h.reply(ctx, b, chatID, "⏳ A download is already active for this chat. Use /cancel to stop it first.")
		return
	}

	h.reply(ctx, b, chatID, fmt.Sprintf("🔄 Processing URL: %s", rawURL))

	file, err := h.prober.Probe(ctx, rawURL)
	h.sessions.StopExpectingURL(chatID)
	if err != nil {
		slog.Warn("probe failed", "error", err, "chat_id", chatID, "url", rawURL)
		h.reply(ctx, b, chatID, fmt.Sprintf("Failed to get file info: %v", err))
		return
	}

	if err := h.sessions.Begin(chatID, file); err != nil {
		if errors.Is(err, domain.ErrSessionActive) {
			h.reply(ctx, b, chatID, "⏳ A download is already active for this chat. Use /cancel to stop it first.")
			return
		}
		h.logError(ctx, err, "begin session")
		return
	}

	slog.Info("file probed", "chat_id", chatID, "name", file.Name, "size", file.Size)
	h.sendConfirmation(ctx, b, chatID, file)
}

func (h *Handler) sendConfirmation(ctx context.Context, b *bot.Bot, chatID int64, file *domain.RemoteFile) {
	text := service.FormatFileInfo(file)

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if h.cfg.Mode() == domain.ConfirmButtons {
		params.ReplyMarkup = telegram.ConfirmKeyboard(true)
	} else {
		params.Text += "\n\nReply yes to download, rename to change the file name or no to cancel."
	}

	if _, err := b.SendMessage(ctx, params); err != nil {
		slog.Error("send confirmation", "error", err, "chat_id", chatID)
		h.sessions.Clear(chatID)
	}
}

func (h *Handler) handleTextConfirmation(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	word := strings.ToLower(text)
	switch {
	case slices.Contains(config.ConfirmWords, word):
		h.startDownload(ctx, b, chatID, 0)
	case slices.Contains(config.CancelWords, word):
		h.cancel(ctx, b, chatID, 0)
	case slices.Contains(config.RenameWords, word):
		h.beginRename(ctx, b, chatID, 0)
	default:
		h.reply(ctx, b, chatID, "Reply yes to download, rename to change the file name or no to cancel.")
	}
}

// startDownload hands a confirmed session to the workflow. messageID, when
// set, is the confirmation message that becomes the progress message.
func (h *Handler) startDownload(ctx context.Context, b *bot.Bot, chatID int64, messageID int) {
	const waiting = "Downloading... Please wait."

	if _, ok := h.sessions.Get(chatID); !ok {
		h.replyOrEdit(ctx, b, chatID, messageID, "No active download found. Please send a new URL.")
		return
	}

	if messageID != 0 {
		if _, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        waiting,
			ReplyMarkup: telegram.CancelKeyboard(),
		}); err != nil {
			slog.Warn("edit confirmation message", "error", err, "chat_id", chatID)
			messageID = 0
		}
	}
	if messageID == 0 {
		msg, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        waiting,
			ReplyMarkup: telegram.CancelKeyboard(),
		})
		if err != nil {
			slog.Error("send progress message", "error", err, "chat_id", chatID)
		} else {
			messageID = msg.ID
		}
	}

	err := h.workflow.Start(ctx, chatID, messageID)
	switch {
	case err == nil:
		slog.Info("download started", "chat_id", chatID)
	case errors.Is(err, domain.ErrSessionNotFound):
		h.replyOrEdit(ctx, b, chatID, messageID, "No active download found. Please send a new URL.")
	case errors.Is(err, domain.ErrSessionPhase):
		h.reply(ctx, b, chatID, "⏳ This download has already started.")
	default:
		h.logError(ctx, err, "start download")
	}
}

func (h *Handler) beginRename(ctx context.Context, b *bot.Bot, chatID int64, messageID int) {
	if err := h.sessions.SetPhase(chatID, domain.PhaseRenaming, domain.PhaseConfirming); err != nil {
		h.replyOrEdit(ctx, b, chatID, messageID, "No active download found. Please send a new URL.")
		return
	}
	h.replyOrEdit(ctx, b, chatID, messageID, fmt.Sprintf(
		"✏️ Send the new file name without extension. %s will be added.", h.cfg.Format().Extension()))
}

func (h *Handler) applyRename(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	name, err := renamedFileName(text, h.cfg.Format())
	if err != nil {
		h.reply(ctx, b, chatID, fmt.Sprintf(
			"❌ Invalid file name. Use up to %d characters without slashes.", config.MaxFileNameLen))
		return
	}

	if err := h.sessions.Rename(chatID, name); err != nil {
		h.reply(ctx, b, chatID, "No active download found. Please send a new URL.")
		return
	}

	sess, ok := h.sessions.Get(chatID)
	if !ok {
		return
	}
	h.sendConfirmation(ctx, b, chatID, &domain.RemoteFile{URL: sess.URL, Name: sess.FileName, Size: sess.TotalSize})
}

// renamedFileName validates a user supplied base name and appends the
// format extension unless it is already there.
func renamedFileName(text string, format domain.ArchiveFormat) (string, error) {
	name := strings.TrimSpace(text)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		len([]rune(name)) > config.MaxFileNameLen {
		return "", domain.ErrInvalidFileName
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", domain.ErrInvalidFileName
		}
	}

	ext := format.Extension()
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name, nil
}

func (h *Handler) handleCancelCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.cancel(ctx, b, update.Message.Chat.ID, 0)
}

// cancel stops the chat's session and returns the phase it was in. A
// running download reports its own cancellation on the progress message.
func (h *Handler) cancel(ctx context.Context, b *bot.Bot, chatID int64, messageID int) domain.SessionPhase {
	phase, ok := h.sessions.Cancel(chatID)
	if !ok {
		h.sessions.StopExpectingURL(chatID)
		h.replyOrEdit(ctx, b, chatID, messageID, "No active download found.")
		return ""
	}

	switch phase {
	case domain.PhaseProcessing:
		h.reply(ctx, b, chatID, "⏳ The download has finished and the file is being processed. It cannot be canceled now.")
	case domain.PhaseDownloading:
		slog.Info("download cancel requested", "chat_id", chatID)
	default:
		h.sessions.StopExpectingURL(chatID)
		h.replyOrEdit(ctx, b, chatID, messageID, "🚫 Download canceled.")
	}
	return phase
}

func (h *Handler) handleDownloadCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	h.answer(ctx, b, query, "")

	chatID, messageID, ok := callbackMessage(query)
	if !ok {
		return
	}
	h.startDownload(ctx, b, chatID, messageID)
}

func (h *Handler) handleRenameCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	h.answer(ctx, b, query, "")

	chatID, messageID, ok := callbackMessage(query)
	if !ok {
		return
	}
	h.beginRename(ctx, b, chatID, messageID)
}

func (h *Handler) handleCancelCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}

	chatID, messageID, ok := callbackMessage(query)
	if !ok {
		h.answer(ctx, b, query, "")
		return
	}

	if h.cancel(ctx, b, chatID, messageID) == domain.PhaseDownloading {
		h.answer(ctx, b, query, "Canceling…")
	} else {
		h.answer(ctx, b, query, "")
	}
}

// replyOrEdit edits messageID when set, otherwise sends a new message.
func (h *Handler) replyOrEdit(ctx context.Context, b *bot.Bot, chatID int64, messageID int, text string) {
	if messageID == 0 {
		h.reply(ctx, b, chatID, text)
		return
	}
	if _, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}); err != nil {
		slog.Warn("edit message", "error", err, "chat_id", chatID)
		h.reply(ctx, b, chatID, text)
	}
}
