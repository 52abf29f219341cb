package middleware

import "github.com/go-telegram/bot/models"

// chatAndUser returns the chat and sender of a message or callback update.
func chatAndUser(update *models.Update) (kind string, chatID, userID int64) {
	switch {
	case update.Message != nil:
		kind = "message"
		chatID = update.Message.Chat.ID
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
	case update.CallbackQuery != nil:
		kind = "callback_query"
		if update.CallbackQuery.Message.Message != nil {
			chatID = update.CallbackQuery.Message.Message.Chat.ID
		}
		userID = update.CallbackQuery.From.ID
	default:
		kind = "unknown"
	}
	return kind, chatID, userID
}
