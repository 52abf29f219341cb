package domain

import "github.com/dustin/go-humanize"

// RemoteFile is what a probe learned about a URL before downloading it.
type RemoteFile struct {
	URL  string
	Name string
	Size int64
}

// HumanSize renders the size for chat messages, "Unknown" when not reported.
func (f *RemoteFile) HumanSize() string {
	if f.Size <= 0 {
		return "Unknown"
	}
	return humanize.IBytes(uint64(f.Size))
}

// StoredFile is an entry of the working directory listing.
type StoredFile struct {
	Path string
	Size int64
}
