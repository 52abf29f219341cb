package domain

import (
	"fmt"
	"strings"
)

type ArchiveFormat string

const (
	FormatTarGz ArchiveFormat = "tgz"
	FormatZip   ArchiveFormat = "zip"
)

// Extension is appended to user supplied file names on rename.
func (f ArchiveFormat) Extension() string {
	return "." + string(f)
}

// Label is the upper-case name used in user messages.
func (f ArchiveFormat) Label() string {
	return strings.ToUpper(string(f))
}

func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tgz", "tar.gz", "targz":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", fmt.Errorf("unknown archive format %q", s)
	}
}

type ConfirmMode string

const (
	ConfirmButtons ConfirmMode = "buttons"
	ConfirmText    ConfirmMode = "text"
)

func ParseConfirmMode(s string) (ConfirmMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buttons", "button", "inline":
		return ConfirmButtons, nil
	case "text":
		return ConfirmText, nil
	default:
		return "", fmt.Errorf("unknown confirm mode %q", s)
	}
}
