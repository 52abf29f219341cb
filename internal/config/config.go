package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/set-night/bootimgbot/internal/domain"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required,notEmpty"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Workflow
	WorkDir       string `env:"WORK_DIR" envDefault:"temp_files"`
	ArchiveFormat string `env:"ARCHIVE_FORMAT" envDefault:"tgz"`
	ConfirmMode   string `env:"CONFIRM_MODE" envDefault:"buttons"`
	RepackZip     bool   `env:"REPACK_ZIP" envDefault:"true"`

	// Transfer
	ChunkSize        int           `env:"CHUNK_SIZE" envDefault:"1048576"`
	ProgressInterval time.Duration `env:"PROGRESS_INTERVAL" envDefault:"2s"`
	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"0s"`
	MaxAttachBytes   int64         `env:"MAX_ATTACH_BYTES" envDefault:"52428800"`

	// Oversized results
	UploadURL        string        `env:"UPLOAD_URL" envDefault:"https://tmpfiles.org/api/v1/upload"`
	UploadAttempts   int           `env:"UPLOAD_ATTEMPTS" envDefault:"3"`
	UploadRetryDelay time.Duration `env:"UPLOAD_RETRY_DELAY" envDefault:"2s"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Bot behavior
	DropPendingUpdates bool   `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"20"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`

	// Telegram logging
	LogTelegramChatID int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError     int   `env:"LOG_TOPIC_ERROR"`
	LogTopicJobs      int   `env:"LOG_TOPIC_JOBS"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if _, err := domain.ParseArchiveFormat(c.ArchiveFormat); err != nil {
		return fmt.Errorf("ARCHIVE_FORMAT: %w", err)
	}
	if _, err := domain.ParseConfirmMode(c.ConfirmMode); err != nil {
		return fmt.Errorf("CONFIRM_MODE: %w", err)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.MaxAttachBytes <= 0 {
		return fmt.Errorf("MAX_ATTACH_BYTES must be positive, got %d", c.MaxAttachBytes)
	}
	if c.UploadAttempts <= 0 {
		return fmt.Errorf("UPLOAD_ATTEMPTS must be positive, got %d", c.UploadAttempts)
	}
	return nil
}

func (c *Config) Format() domain.ArchiveFormat {
	f, _ := domain.ParseArchiveFormat(c.ArchiveFormat)
	return f
}

func (c *Config) Mode() domain.ConfirmMode {
	m, _ := domain.ParseConfirmMode(c.ConfirmMode)
	return m
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) AdminIDsString() string {
	parts := make([]string, len(c.AdminIDs))
	for i, id := range c.AdminIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
