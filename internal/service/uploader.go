package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/set-night/bootimgbot/internal/domain"
)

// TmpFilesUploader posts files to an anonymous tmpfiles.org style host.
type TmpFilesUploader struct {
	httpClient *http.Client
	endpoint   string
	attempts   int
	delay      time.Duration
}

func NewTmpFilesUploader(httpClient *http.Client, endpoint string, attempts int, delay time.Duration) *TmpFilesUploader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if attempts < 1 {
		attempts = 1
	}
	return &TmpFilesUploader{
		httpClient: httpClient,
		endpoint:   endpoint,
		attempts:   attempts,
		delay:      delay,
	}
}

type uploadResponse struct {
	Status string `json:"status"`
	Data   struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Upload tries a fixed number of times with a fixed pause between attempts.
func (u *TmpFilesUploader) Upload(ctx context.Context, path string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		link, err := u.uploadOnce(ctx, path)
		if err == nil {
			return link, nil
		}
		lastErr = err
		slog.Warn("upload attempt failed", "attempt", attempt, "attempts", u.attempts, "error", err)

		if attempt == u.attempts {
			break
		}
		timer := time.NewTimer(u.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, ctx.Err())
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %v", domain.ErrUploadFailed, u.attempts, lastErr)
}

func (u *TmpFilesUploader) uploadOnce(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload: unexpected status %s", resp.Status)
	}

	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if result.Data.URL == "" {
		return "", fmt.Errorf("upload response has no url")
	}
	return result.Data.URL, nil
}
