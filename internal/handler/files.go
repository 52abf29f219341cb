package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/bootimgbot/internal/domain"
	"github.com/set-night/bootimgbot/internal/telegram"
)

const filesHeader = "------------------------\n" +
	"\t📂 Total Files\n" +
	"------------------------\n"

func (h *Handler) handleShowFiles(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !h.mayManageFiles(update.Message.From) {
		return
	}

	files, err := h.workspace.List()
	if err != nil {
		h.logError(ctx, err, "list files")
		h.reply(ctx, b, chatID, "❌ Directory not found.")
		return
	}

	if err := telegram.SendLongMessage(ctx, b, chatID, formatFileList(files)); err != nil {
		h.logError(ctx, err, "send file list")
	}
}

func formatFileList(files []domain.StoredFile) string {
	if len(files) == 0 {
		return filesHeader + "No files found."
	}

	var sb strings.Builder
	sb.WriteString(filesHeader)
	var total int64
	for i, f := range files {
		sb.WriteString(fmt.Sprintf("%d) %s (%s)\n", i+1, f.Path, humanize.IBytes(uint64(f.Size))))
		total += f.Size
	}
	sb.WriteString(fmt.Sprintf("\n%d files, %s", len(files), humanize.IBytes(uint64(total))))
	return sb.String()
}

func (h *Handler) handleDeleteFiles(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	if !h.mayManageFiles(update.Message.From) {
		return
	}

	if n := h.sessions.Active(); n > 0 {
		h.reply(ctx, b, chatID, fmt.Sprintf("⏳ %s. %d still active, try again when they finish.",
			capitalize(domain.ErrDownloadsActive.Error()), n))
		return
	}

	removed, err := h.workspace.Purge()
	if err != nil {
		h.logError(ctx, err, "delete files")
		h.reply(ctx, b, chatID, "❌ Directory not found.")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("🗑️ All files in %s have been deleted (%d entries).", h.cfg.WorkDir, removed))
}

// mayManageFiles allows everyone when no admins are configured.
func (h *Handler) mayManageFiles(from *models.User) bool {
	if len(h.cfg.AdminIDs) == 0 {
		return true
	}
	return from != nil && h.cfg.IsAdmin(from.ID)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
