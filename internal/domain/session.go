package domain

import (
	"context"
	"time"
)

type SessionPhase string

const (
	PhaseConfirming  SessionPhase = "confirming"
	PhaseRenaming    SessionPhase = "renaming"
	PhaseDownloading SessionPhase = "downloading"
	PhaseProcessing  SessionPhase = "processing"
)

// DownloadSession is the in-memory state of one chat's download request.
type DownloadSession struct {
	ChatID            int64
	URL               string
	FileName          string
	TotalSize         int64 // 0 when the server did not report a size
	Downloaded        int64
	Cancelled         bool
	ProgressMessageID int
	Phase             SessionPhase
	WorkDir           string
	CreatedAt         time.Time

	CancelFunc context.CancelFunc
}

// Busy reports whether the session is past the confirmation step.
func (s *DownloadSession) Busy() bool {
	return s.Phase == PhaseDownloading || s.Phase == PhaseProcessing
}
