package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// ChatLimiter keeps one token bucket per chat.
type ChatLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewChatLimiter allows perMinute messages per chat with a burst of the
// same size. perMinute <= 0 disables limiting.
func NewChatLimiter(perMinute int) *ChatLimiter {
	l := &ChatLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Inf,
		burst:    1,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

func (l *ChatLimiter) Allow(chatID int64) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[chatID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Prune drops limiters whose bucket has refilled. Such a limiter behaves
// exactly like a new one, so forgetting it changes nothing for the chat.
func (l *ChatLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for chatID, lim := range l.limiters {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.limiters, chatID)
			n++
		}
	}
	return n
}

// Len returns the number of chats currently tracked.
func (l *ChatLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimit returns middleware that enforces per-minute rate limits.
func RateLimit(limiter *ChatLimiter) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			// Only rate limit messages (not callbacks or other updates)
			if update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID
			if !limiter.Allow(chatID) {
				slog.Debug("rate limited", "chat_id", chatID)
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Too many requests. Please wait a moment.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}
