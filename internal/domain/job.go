package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobDelivered      JobStatus = "delivered"
	JobUploaded       JobStatus = "uploaded"
	JobNotFound       JobStatus = "not_found"
	JobInvalidArchive JobStatus = "invalid_archive"
	JobCancelled      JobStatus = "cancelled"
	JobFailed         JobStatus = "failed"
)

// DownloadJob is the history record of one finished workflow run.
type DownloadJob struct {
	ID         uuid.UUID
	ChatID     int64
	URL        string
	FileName   string
	Size       int64
	Format     ArchiveFormat
	Status     JobStatus
	Error      string
	Link       string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall-clock time the job took.
func (j *DownloadJob) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}
