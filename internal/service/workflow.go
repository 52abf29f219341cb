package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/domain"
)

// Recorder stores finished jobs.
type Recorder interface {
	Record(ctx context.Context, job *domain.DownloadJob) error
}

// Recorders fans a job out to several recorders.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, job *domain.DownloadJob) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Workflow runs stream → extract → deliver for one confirmed session.
type Workflow struct {
	sessions         *SessionStore
	workspace        *Workspace
	downloader       *Downloader
	extractor        Extractor
	delivery         *Delivery
	recorder         Recorder
	notifier         Notifier
	progressInterval time.Duration
	timeout          time.Duration
	now              func() time.Time
}

// WorkflowDeps contains everything a Workflow needs.
type WorkflowDeps struct {
	Sessions         *SessionStore
	Workspace        *Workspace
	Downloader       *Downloader
	Extractor        Extractor
	Delivery         *Delivery
	Recorder         Recorder
	Notifier         Notifier
	ProgressInterval time.Duration
	Timeout          time.Duration
}

func NewWorkflow(deps WorkflowDeps) *Workflow {
	return &Workflow{
		sessions:         deps.Sessions,
		workspace:        deps.Workspace,
		downloader:       deps.Downloader,
		extractor:        deps.Extractor,
		delivery:         deps.Delivery,
		recorder:         deps.Recorder,
		notifier:         deps.Notifier,
		progressInterval: deps.ProgressInterval,
		timeout:          deps.Timeout,
		now:              time.Now,
	}
}

func (w *Workflow) Format() domain.ArchiveFormat {
	return w.extractor.Format()
}

// Start moves the chat's confirmed session into downloading and runs the
// rest in the background. progressMessageID is edited in place.
func (w *Workflow) Start(ctx context.Context, chatID int64, progressMessageID int) error {
	runCtx, sess, err := w.prepare(ctx, chatID, progressMessageID)
	if err != nil {
		return err
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in download workflow",
					"chat_id", chatID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				w.sessions.Clear(chatID)
			}
		}()
		w.execute(runCtx, sess)
	}()
	return nil
}

// Run is Start without the goroutine.
func (w *Workflow) Run(ctx context.Context, chatID int64, progressMessageID int) (*domain.DownloadJob, error) {
	runCtx, sess, err := w.prepare(ctx, chatID, progressMessageID)
	if err != nil {
		return nil, err
	}
	return w.execute(runCtx, sess), nil
}

func (w *Workflow) prepare(ctx context.Context, chatID int64, progressMessageID int) (context.Context, domain.DownloadSession, error) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if w.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	sess, err := w.sessions.StartDownload(chatID, cancel, progressMessageID)
	if err != nil {
		cancel()
		return nil, domain.DownloadSession{}, err
	}
	return runCtx, sess, nil
}

func (w *Workflow) execute(ctx context.Context, sess domain.DownloadSession) *domain.DownloadJob {
	chatID := sess.ChatID
	// Chat messages must still go out after the run context is cancelled.
	notifyCtx := context.WithoutCancel(ctx)

	job := &domain.DownloadJob{
		ID:        uuid.New(),
		ChatID:    chatID,
		URL:       sess.URL,
		FileName:  sess.FileName,
		Size:      sess.TotalSize,
		Format:    w.extractor.Format(),
		CreatedAt: w.now(),
	}

	var workDir string
	defer func() {
		w.sessions.Clear(chatID)
		if err := w.workspace.Release(workDir); err != nil {
			slog.Error("release workspace", "error", err, "chat_id", chatID)
		}
		job.FinishedAt = w.now()
		if w.recorder != nil {
			if err := w.recorder.Record(notifyCtx, job); err != nil {
				slog.Error("record job", "error", err, "job_id", job.ID)
			}
		}
		slog.Info("download job finished",
			"job_id", job.ID,
			"chat_id", chatID,
			"status", job.Status,
			"duration", job.Duration(),
		)
	}()

	fail := func(status domain.JobStatus, err error) *domain.DownloadJob {
		job.Status = status
		if err != nil {
			job.Error = err.Error()
		}
		return job
	}

	dir, err := w.workspace.Allocate(chatID)
	if err != nil {
		slog.Error("allocate workspace", "error", err, "chat_id", chatID)
		w.edit(notifyCtx, chatID, sess.ProgressMessageID, "❌ Failed to prepare storage for the download.")
		return fail(domain.JobFailed, err)
	}
	workDir = dir
	w.sessions.SetWorkDir(chatID, dir)

	archiveDir := filepath.Join(dir, config.ArchiveDirName)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		slog.Error("create archive dir", "error", err, "chat_id", chatID)
		w.edit(notifyCtx, chatID, sess.ProgressMessageID, "❌ Failed to prepare storage for the download.")
		return fail(domain.JobFailed, err)
	}

	// Stream
	throttle := NewProgressThrottle(w.progressInterval)
	archivePath := filepath.Join(archiveDir, sess.FileName)
	res, err := w.downloader.Download(ctx, sess.URL, archivePath, sess.TotalSize, func(p Progress) {
		w.sessions.SetProgress(chatID, p.Downloaded)
		if sess.ProgressMessageID != 0 && throttle.Allow(p) {
			if err := w.notifier.EditProgress(notifyCtx, chatID, sess.ProgressMessageID, FormatProgress(p)); err != nil {
				slog.Debug("edit progress message", "error", err, "chat_id", chatID)
			}
		}
	})
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			w.edit(notifyCtx, chatID, sess.ProgressMessageID, "🚫 Download canceled.")
			return fail(domain.JobCancelled, nil)
		}
		slog.Warn("download failed", "error", err, "chat_id", chatID, "url", sess.URL)
		w.edit(notifyCtx, chatID, sess.ProgressMessageID, fmt.Sprintf("❌ Failed to download the file: %v", err))
		return fail(domain.JobFailed, err)
	}
	job.Size = res.Size
	w.edit(notifyCtx, chatID, sess.ProgressMessageID, fmt.Sprintf("Download completed in %s!", FormatElapsed(res.Elapsed)))

	// Extraction and delivery are not interruptible.
	if err := w.sessions.SetPhase(chatID, domain.PhaseProcessing, domain.PhaseDownloading); err != nil {
		// A cancel that raced the last chunk wins.
		slog.Warn("enter processing phase", "error", err, "chat_id", chatID)
		w.edit(notifyCtx, chatID, sess.ProgressMessageID, "🚫 Download canceled.")
		return fail(domain.JobCancelled, nil)
	}

	payload, err := w.extractor.Extract(res.Path, filepath.Join(dir, config.PayloadDirName), config.PayloadSuffix)
	if err != nil {
		var archiveErr *domain.ArchiveError
		switch {
		case errors.Is(err, domain.ErrPayloadNotFound):
			w.send(notifyCtx, chatID, "❌ No boot.img found in the ROM.")
			return fail(domain.JobNotFound, err)
		case errors.As(err, &archiveErr):
			w.send(notifyCtx, chatID, fmt.Sprintf("❌ The downloaded file is not a valid %s.", w.extractor.Format().Label()))
			return fail(domain.JobInvalidArchive, err)
		default:
			slog.Error("extract payload", "error", err, "chat_id", chatID)
			w.send(notifyCtx, chatID, fmt.Sprintf("❌ Failed to extract boot.img: %v", err))
			return fail(domain.JobFailed, err)
		}
	}
	w.send(notifyCtx, chatID, "✅ Extracted boot.img successfully.")

	// The archive is no longer needed; free the space before packaging.
	if err := os.Remove(res.Path); err != nil {
		slog.Debug("remove archive", "error", err, "path", res.Path)
	}

	result, err := w.delivery.Deliver(notifyCtx, w.notifier, chatID, payload)
	if err != nil {
		if errors.Is(err, domain.ErrUploadFailed) {
			w.send(notifyCtx, chatID, fmt.Sprintf("Upload failed after retries: %v", err))
		} else {
			slog.Error("deliver payload", "error", err, "chat_id", chatID)
			w.send(notifyCtx, chatID, fmt.Sprintf("❌ Failed to send the result: %v", err))
		}
		return fail(domain.JobFailed, err)
	}

	if result.Attached {
		job.Status = domain.JobDelivered
	} else {
		job.Status = domain.JobUploaded
		job.Link = result.Link
		text := fmt.Sprintf("Download %s here: %s", result.Artifact.Name, result.Link)
		if err := w.notifier.SendLink(notifyCtx, chatID, text, "⬇️ "+result.Artifact.Name, result.Link); err != nil {
			slog.Error("send link", "error", err, "chat_id", chatID)
		}
	}
	w.send(notifyCtx, chatID, "✅ Process completed")
	return job
}

func (w *Workflow) send(ctx context.Context, chatID int64, text string) {
	if _, err := w.notifier.Send(ctx, chatID, text); err != nil {
		slog.Error("send message", "error", err, "chat_id", chatID)
	}
}

// edit falls back to a new message when there is no message to edit.
func (w *Workflow) edit(ctx context.Context, chatID int64, messageID int, text string) {
	if messageID == 0 {
		w.send(ctx, chatID, text)
		return
	}
	if err := w.notifier.Edit(ctx, chatID, messageID, text); err != nil {
		slog.Warn("edit message", "error", err, "chat_id", chatID)
		w.send(ctx, chatID, text)
	}
}
