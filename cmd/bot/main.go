package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	bootimgbot "github.com/set-night/bootimgbot"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/handler"
	"github.com/set-night/bootimgbot/internal/middleware"
	"github.com/set-night/bootimgbot/internal/repository"
	"github.com/set-night/bootimgbot/internal/service"
	"github.com/set-night/bootimgbot/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job history is optional
	var jobs *repository.JobRepository
	if cfg.DatabaseURL != "" {
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		migrationsFS, err := fs.Sub(bootimgbot.MigrationsFS, "migrations")
		if err != nil {
			slog.Error("failed to load embedded migrations", "error", err)
			os.Exit(1)
		}
		if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		jobs = repository.NewJobRepository(pool)
	} else {
		slog.Info("DATABASE_URL not set, job history disabled")
	}

	// Initialize services
	workspace, err := service.NewWorkspace(cfg.WorkDir)
	if err != nil {
		slog.Error("failed to prepare work dir", "error", err)
		os.Exit(1)
	}
	extractor, err := service.NewExtractor(cfg.Format())
	if err != nil {
		slog.Error("failed to create extractor", "error", err)
		os.Exit(1)
	}
	sessions := service.NewSessionStore()
	prober := service.NewProber(nil)
	downloader := service.NewDownloader(nil, cfg.ChunkSize)
	uploader := service.NewTmpFilesUploader(nil, cfg.UploadURL, cfg.UploadAttempts, cfg.UploadRetryDelay)
	delivery := service.NewDelivery(cfg.RepackZip, cfg.MaxAttachBytes, uploader)

	// Handler pointer for use in default handler closure
	var h *handler.Handler

	limiter := middleware.NewChatLimiter(cfg.RateLimitPerMinute)

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
			middleware.RateLimit(limiter),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if h == nil {
				return
			}
			h.HandleDefault(ctx, b, update)
		}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}

	// Initialize telegram logger
	tgLogger := telegram.NewTelegramLogger(b, cfg)

	recorders := service.Recorders{tgLogger}
	if jobs != nil {
		recorders = append(recorders, jobs)
	}

	workflow := service.NewWorkflow(service.WorkflowDeps{
		Sessions:         sessions,
		Workspace:        workspace,
		Downloader:       downloader,
		Extractor:        extractor,
		Delivery:         delivery,
		Recorder:         recorders,
		Notifier:         telegram.NewMessenger(b),
		ProgressInterval: cfg.ProgressInterval,
		Timeout:          cfg.DownloadTimeout,
	})

	// Initialize handler
	h = handler.New(handler.Deps{
		Bot:       b,
		Cfg:       cfg,
		Sessions:  sessions,
		Workspace: workspace,
		Prober:    prober,
		Workflow:  workflow,
		Jobs:      jobs,
		TgLogger:  tgLogger,
	})

	// Register all handlers
	h.Register()

	// Remove session directories left behind by crashes and idle rate limiters
	go func() {
		ticker := time.NewTicker(config.WorkspaceSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := workspace.Sweep(config.StaleWorkspaceAge, sessions.WorkDirs())
				if err != nil {
					slog.Error("sweep workspace", "error", err)
				}
				if n > 0 {
					slog.Info("removed stale session dirs", "count", n)
				}
				if n := limiter.Prune(); n > 0 {
					slog.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	}()

	// Start bot
	slog.Info("starting bot",
		"username", me.Username,
		"format", cfg.Format(),
		"confirm_mode", cfg.Mode(),
		"work_dir", workspace.Root(),
	)
	b.Start(ctx)

	// Graceful shutdown
	slog.Info("bot stopped gracefully")
}
