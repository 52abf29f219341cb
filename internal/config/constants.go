package config

import "time"

const (
	// Payload lookup
	PayloadSuffix    = "boot.img"
	PayloadName      = "boot.img"
	ZipArtifactName  = "boot.zip"
	FallbackFileName = "unknown_file"

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Probe request timeout
	ProbeTimeout = 30 * time.Second

	// Progress bar cells
	ProgressBarWidth = 10

	// Orphaned workspace cleanup
	WorkspaceSweepInterval = 30 * time.Minute
	StaleWorkspaceAge      = 12 * time.Hour

	// Session dir layout; archive members never land next to the archive
	ArchiveDirName = "archive"
	PayloadDirName = "payload"

	// Max length of a renamed file's base name
	MaxFileNameLen = 128
)

// ConfirmWords are accepted as "download" in text confirmation mode.
var ConfirmWords = []string{"yes", "y", "download", "ok"}

// CancelWords are accepted as "cancel" in text confirmation mode.
var CancelWords = []string{"no", "n", "cancel", "stop"}

// RenameWords start the rename prompt in text confirmation mode.
var RenameWords = []string{"rename"}
