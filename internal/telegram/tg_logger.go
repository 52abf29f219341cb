package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/domain"
)

// TelegramLogger mirrors errors and finished jobs into an admin chat.
type TelegramLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewTelegramLogger(b *bot.Bot, cfg *config.Config) *TelegramLogger {
	return &TelegramLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError LogType = "error"
	LogTypeJob   LogType = "job"
)

func (l *TelegramLogger) Log(ctx context.Context, logType LogType, message string) {
	if l.cfg.LogTelegramChatID == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID: l.cfg.LogTelegramChatID,
		Text:   Truncate(message, config.MaxTelegramMessageLen),
	}
	if topicID := l.topicID(logType); topicID != 0 {
		params.MessageThreadID = topicID
	}
	if _, err := l.bot.SendMessage(ctx, params); err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *TelegramLogger) LogError(ctx context.Context, err error, where string) {
	msg := fmt.Sprintf("❌ Error\n\nContext: %s\nError: %s\nTime: %s",
		where, err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(ctx, LogTypeError, msg)
}

// Record reports a finished job. Failed jobs also go to the error topic.
func (l *TelegramLogger) Record(ctx context.Context, job *domain.DownloadJob) error {
	size := "Unknown"
	if job.Size > 0 {
		size = humanize.IBytes(uint64(job.Size))
	}
	msg := fmt.Sprintf("📦 Job %s\n\nChat: %d\nFile: %s (%s)\nFormat: %s\nDuration: %s",
		job.Status, job.ChatID, job.FileName, size, job.Format.Label(), job.Duration().Round(time.Second))
	if job.Link != "" {
		msg += "\nLink: " + job.Link
	}
	if job.Error != "" {
		msg += "\nError: " + job.Error
	}

	logType := LogTypeJob
	if job.Status == domain.JobFailed {
		logType = LogTypeError
	}
	l.Log(ctx, logType, msg)
	return nil
}

func (l *TelegramLogger) topicID(t LogType) int {
	switch t {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeJob:
		return l.cfg.LogTopicJobs
	default:
		return 0
	}
}
