package service

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/bootimgbot/internal/domain"
)

// Workspace owns the base working directory. Every session gets its own
// uniquely named subdirectory so file names never collide across chats.
type Workspace struct {
	root string
}

func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Workspace{root: abs}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// Allocate creates a fresh directory for one session.
func (w *Workspace) Allocate(chatID int64) (string, error) {
	dir := filepath.Join(w.root, fmt.Sprintf("%d-%s", chatID, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

// Release removes a session directory. Paths outside the root are refused.
func (w *Workspace) Release(dir string) error {
	if dir == "" {
		return nil
	}
	if !w.contains(dir) {
		return fmt.Errorf("refusing to remove %s outside %s", dir, w.root)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// List walks the working directory and returns regular files relative to it.
func (w *Workspace) List() ([]domain.StoredFile, error) {
	var files []domain.StoredFile
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.StoredFile{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list work dir: %w", err)
	}
	return files, nil
}

// Purge deletes everything under the working directory and recreates it.
func (w *Workspace) Purge() (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("read work dir: %w", err)
	}
	if err := os.RemoveAll(w.root); err != nil {
		return 0, fmt.Errorf("remove work dir: %w", err)
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return 0, fmt.Errorf("recreate work dir: %w", err)
	}
	return len(entries), nil
}

// Sweep removes session directories older than maxAge that no live session owns.
func (w *Workspace) Sweep(maxAge time.Duration, inUse map[string]bool) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("read work dir: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(w.root, e.Name())
		if inUse[dir] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("remove stale dir %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (w *Workspace) contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, w.root+string(filepath.Separator))
}
