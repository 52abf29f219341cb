package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL      = errors.New("url must start with http:// or https://")
	ErrSessionActive   = errors.New("download already in progress")
	ErrSessionNotFound = errors.New("no active download")
	ErrSessionPhase    = errors.New("session is not awaiting this action")
	ErrCancelled       = errors.New("download cancelled")
	ErrPayloadNotFound = errors.New("payload not found in archive")
	ErrUploadFailed    = errors.New("upload failed")
	ErrDownloadsActive = errors.New("downloads are still running")
	ErrInvalidFileName = errors.New("invalid file name")
)

// ArchiveError reports an archive that could not be read in the expected format.
type ArchiveError struct {
	Format ArchiveFormat
	Err    error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("invalid %s archive: %v", e.Format, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}
