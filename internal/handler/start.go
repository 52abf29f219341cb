package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/bootimgbot/internal/domain"
	"github.com/set-night/bootimgbot/internal/telegram"
)

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	name := "there"
	if update.Message.From != nil && update.Message.From.FirstName != "" {
		name = update.Message.From.FirstName
	}

	text := fmt.Sprintf(
		"------------------------\n"+
			"🤖 Welcome, %s!\n"+
			"------------------------\n"+
			"📌 This bot helps you download and extract boot.img from Fastboot ROMs.\n\n"+
			"✅ Send /download and then a %s file URL to get started.\n"+
			"✅ Use /help to see all available commands.\n\n"+
			"🚀 Let's begin!",
		telegram.EscapeHTML(name), h.cfg.Format().Label(),
	)

	if _, err := telegram.SendHTML(ctx, b, update.Message.Chat.ID, text, nil); err != nil {
		h.logError(ctx, err, "send start message")
	}
}

func (h *Handler) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	label := h.cfg.Format().Label()
	confirm := "3️⃣ Click '<b>Download</b>' to process it (or '<b>Rename</b>' first)\n"
	if h.cfg.Mode() == domain.ConfirmText {
		confirm = "3️⃣ Reply <code>yes</code> to process it, <code>rename</code> to change the name or <code>no</code> to cancel\n"
	}
	result := "<code>boot.img</code> file"
	if h.cfg.RepackZip {
		result = "<code>boot.img</code> packed as <code>boot.zip</code>"
	}

	text := "------------------------\n" +
		" 🤖 <b>Bot Commands</b>\n" +
		"------------------------\n" +
		"✅ <b>/start</b> - Start the bot\n" +
		"✅ <b>/download</b> - Start downloading a ROM\n" +
		"✅ <b>/cancel</b> - Cancel the current download\n" +
		"✅ <b>/showfiles</b> - Show all stored files\n" +
		"✅ <b>/deletefiles</b> - Delete all stored files\n" +
		"✅ <b>/help</b> - Show this help menu\n\n" +
		"📤 <b>How to use:</b>\n\n" +
		fmt.Sprintf(" ❗ Note ❗: Only %s files supported\n\n", label) +
		"1️⃣ Send the command <code>/download</code>\n" +
		fmt.Sprintf("2️⃣ Send a <b>Fastboot ROM URL</b> (.%s format)\n", h.cfg.Format()) +
		confirm +
		fmt.Sprintf("4️⃣ Get the extracted %s!\n", result)

	if _, err := telegram.SendHTML(ctx, b, update.Message.Chat.ID, text, nil); err != nil {
		h.logError(ctx, err, "send help message")
	}
}
