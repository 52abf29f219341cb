package telegram

import (
	"github.com/go-telegram/bot/models"
)

// Callback data of the confirmation buttons.
const (
	CallbackDownload = "dl_confirm"
	CallbackRename   = "dl_rename"
	CallbackCancel   = "dl_cancel"
)

// InlineButton creates a single inline keyboard button.
func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL inline keyboard button.
func URLButton(text, url string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text: text,
		URL:  url,
	}
}

// InlineKeyboard creates an inline keyboard from rows of buttons.
func InlineKeyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// ButtonRow creates a row of inline buttons.
func ButtonRow(buttons ...models.InlineKeyboardButton) []models.InlineKeyboardButton {
	return buttons
}

// ConfirmKeyboard is shown under the probed file info.
func ConfirmKeyboard(withRename bool) *models.InlineKeyboardMarkup {
	row := ButtonRow(InlineButton("✅ Download", CallbackDownload))
	if withRename {
		row = append(row, InlineButton("✏️ Rename", CallbackRename))
	}
	row = append(row, InlineButton("❌ Cancel", CallbackCancel))
	return InlineKeyboard(row)
}

// CancelKeyboard stays on the progress message while downloading.
func CancelKeyboard() *models.InlineKeyboardMarkup {
	return InlineKeyboard(ButtonRow(InlineButton("🚫 Cancel", CallbackCancel)))
}

// LinkKeyboard is a single URL button.
func LinkKeyboard(label, link string) *models.InlineKeyboardMarkup {
	return InlineKeyboard(ButtonRow(URLButton(label, link)))
}
