package handler

import (
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/repository"
	"github.com/set-night/bootimgbot/internal/service"
	"github.com/set-night/bootimgbot/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot       *bot.Bot
	cfg       *config.Config
	sessions  *service.SessionStore
	workspace *service.Workspace
	prober    *service.Prober
	workflow  *service.Workflow
	jobs      *repository.JobRepository
	tgLogger  *telegram.TelegramLogger
	startedAt time.Time
}

// Deps contains all dependencies required to construct a Handler.
// Jobs and TgLogger may be nil.
type Deps struct {
	Bot       *bot.Bot
	Cfg       *config.Config
	Sessions  *service.SessionStore
	Workspace *service.Workspace
	Prober    *service.Prober
	Workflow  *service.Workflow
	Jobs      *repository.JobRepository
	TgLogger  *telegram.TelegramLogger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:       deps.Bot,
		cfg:       deps.Cfg,
		sessions:  deps.Sessions,
		workspace: deps.Workspace,
		prober:    deps.Prober,
		workflow:  deps.Workflow,
		jobs:      deps.Jobs,
		tgLogger:  deps.TgLogger,
		startedAt: time.Now(),
	}
}
