package service

import (
	"context"
	"sync"
	"time"

	"github.com/set-night/bootimgbot/internal/domain"
)

// SessionStore keeps per-chat download state. A chat has at most one session.
type SessionStore struct {
	mu        sync.Mutex
	sessions  map[int64]*domain.DownloadSession
	expectURL map[int64]bool
	now       func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[int64]*domain.DownloadSession),
		expectURL: make(map[int64]bool),
		now:       time.Now,
	}
}

// ExpectURL marks the chat as waiting for a URL in its next text message.
func (s *SessionStore) ExpectURL(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectURL[chatID] = true
}

func (s *SessionStore) IsExpectingURL(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectURL[chatID]
}

func (s *SessionStore) StopExpectingURL(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expectURL, chatID)
}

// Begin registers a probed file for confirmation.
func (s *SessionStore) Begin(chatID int64, file *domain.RemoteFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[chatID]; ok {
		return domain.ErrSessionActive
	}
	s.sessions[chatID] = &domain.DownloadSession{
		ChatID:    chatID,
		URL:       file.URL,
		FileName:  file.Name,
		TotalSize: file.Size,
		Phase:     domain.PhaseConfirming,
		CreatedAt: s.now(),
	}
	return nil
}

// Get returns a copy of the chat's session.
func (s *SessionStore) Get(chatID int64) (domain.DownloadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return domain.DownloadSession{}, false
	}
	return *sess, true
}

// Phase returns the chat's session phase, or "" without a session.
func (s *SessionStore) Phase(chatID int64) domain.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chatID]; ok {
		return sess.Phase
	}
	return ""
}

// SetPhase moves the session to phase, optionally only from one of the given phases.
func (s *SessionStore) SetPhase(chatID int64, phase domain.SessionPhase, from ...domain.SessionPhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.Cancelled {
		return domain.ErrCancelled
	}
	if len(from) > 0 && !phaseIn(sess.Phase, from) {
		return domain.ErrSessionPhase
	}
	sess.Phase = phase
	return nil
}

// Rename replaces the target file name and returns the session to confirmation.
func (s *SessionStore) Rename(chatID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.Phase != domain.PhaseRenaming {
		return domain.ErrSessionPhase
	}
	sess.FileName = name
	sess.Phase = domain.PhaseConfirming
	return nil
}

// StartDownload moves a confirmed session into the downloading phase and
// attaches its cancel function and progress message.
func (s *SessionStore) StartDownload(chatID int64, cancel context.CancelFunc, progressMessageID int) (domain.DownloadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return domain.DownloadSession{}, domain.ErrSessionNotFound
	}
	if sess.Phase != domain.PhaseConfirming {
		return domain.DownloadSession{}, domain.ErrSessionPhase
	}
	sess.Phase = domain.PhaseDownloading
	sess.CancelFunc = cancel
	sess.ProgressMessageID = progressMessageID
	sess.Cancelled = false
	return *sess, nil
}

func (s *SessionStore) SetWorkDir(chatID int64, dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chatID]; ok {
		sess.WorkDir = dir
	}
}

// SetProgress records transferred bytes; the counter never goes backwards.
func (s *SessionStore) SetProgress(chatID int64, downloaded int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chatID]; ok && downloaded > sess.Downloaded {
		sess.Downloaded = downloaded
	}
}

// Cancel flags the session as cancelled and returns the phase it was in.
// A session still awaiting confirmation is dropped right away; a
// downloading one is signalled and cleared by its workflow. A processing
// session is left alone since extraction and delivery cannot be stopped.
func (s *SessionStore) Cancel(chatID int64) (domain.SessionPhase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return "", false
	}
	if sess.Phase == domain.PhaseProcessing {
		return sess.Phase, true
	}
	sess.Cancelled = true
	if sess.CancelFunc != nil {
		sess.CancelFunc()
	}
	if !sess.Busy() {
		delete(s.sessions, chatID)
	}
	return sess.Phase, true
}

// Clear removes the chat's session and URL flag.
func (s *SessionStore) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chatID]; ok && sess.CancelFunc != nil {
		sess.CancelFunc()
	}
	delete(s.sessions, chatID)
	delete(s.expectURL, chatID)
}

// Active counts sessions that are downloading or processing.
func (s *SessionStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.Busy() {
			n++
		}
	}
	return n
}

// WorkDirs returns the workspace directories currently owned by sessions.
func (s *SessionStore) WorkDirs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirs := make(map[string]bool, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.WorkDir != "" {
			dirs[sess.WorkDir] = true
		}
	}
	return dirs
}

func phaseIn(p domain.SessionPhase, set []domain.SessionPhase) bool {
	for _, v := range set {
		if p == v {
			return true
		}
	}
	return false
}
