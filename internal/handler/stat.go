package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func (h *Handler) handleStat(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if !h.cfg.IsAdmin(update.Message.From.ID) {
		return
	}
	chatID := update.Message.Chat.ID

	var sb strings.Builder
	sb.WriteString("📊 Statistics\n\n")
	sb.WriteString(fmt.Sprintf("Uptime: %s\n", time.Since(h.startedAt).Round(time.Second)))
	sb.WriteString(fmt.Sprintf("Active downloads: %d\n", h.sessions.Active()))

	if files, err := h.workspace.List(); err == nil {
		var size int64
		for _, f := range files {
			size += f.Size
		}
		sb.WriteString(fmt.Sprintf("Stored files: %d (%s)\n", len(files), humanize.IBytes(uint64(size))))
	}

	if h.jobs != nil {
		since := time.Now().Add(-24 * time.Hour)
		counts, err := h.jobs.CountByStatus(ctx, since)
		if err != nil {
			h.logError(ctx, err, "count jobs")
		} else {
			sb.WriteString("\nJobs in the last 24h:\n")
			if len(counts) == 0 {
				sb.WriteString("none\n")
			}
			for _, c := range counts {
				sb.WriteString(fmt.Sprintf("  %s: %d\n", c.Status, c.Count))
			}
		}
		if total, err := h.jobs.TotalTransferred(ctx, since); err == nil {
			sb.WriteString(fmt.Sprintf("Downloaded: %s\n", humanize.IBytes(uint64(total))))
		}
	}

	h.reply(ctx, b, chatID, sb.String())
}
