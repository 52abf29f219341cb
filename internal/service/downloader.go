package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/set-night/bootimgbot/internal/domain"
	"golang.org/x/time/rate"
)

// Progress is a snapshot of a running transfer.
type Progress struct {
	Downloaded int64
	Total      int64 // 0 when unknown
	Elapsed    time.Duration
	Speed      float64 // average bytes per second since start
	ETA        time.Duration
}

// Percent is 0 for unknown totals and exactly 100 once Downloaded reaches Total.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	if p.Downloaded >= p.Total {
		return 100
	}
	return float64(p.Downloaded) * 100 / float64(p.Total)
}

func (p Progress) WholePercent() int {
	return int(p.Percent())
}

// DownloadResult describes a completed transfer.
type DownloadResult struct {
	Path    string
	Size    int64
	Elapsed time.Duration
}

// Downloader streams a URL to disk in fixed-size chunks.
type Downloader struct {
	httpClient *http.Client
	chunkSize  int
	now        func() time.Time
}

func NewDownloader(httpClient *http.Client, chunkSize int) *Downloader {
	if httpClient == nil {
		// No overall timeout: large ROMs take as long as they take.
		httpClient = &http.Client{}
	}
	return &Downloader{
		httpClient: httpClient,
		chunkSize:  chunkSize,
		now:        time.Now,
	}
}

// Download writes url to dest, calling onProgress after every chunk.
// total is the size learned by the probe; the GET response's length is
// used instead when the probe had none. When ctx is cancelled the partial
// file is removed and domain.ErrCancelled is returned.
func (d *Downloader) Download(ctx context.Context, url, dest string, total int64, onProgress func(Progress)) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	start := d.now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, d.transferError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download: unexpected status %s", resp.Status)
	}
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	file, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", dest, err)
	}

	downloaded, err := d.copyChunks(ctx, file, resp.Body, total, start, onProgress)
	closeErr := file.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", dest, closeErr)
	}
	if err != nil {
		os.Remove(dest)
		return nil, err
	}

	return &DownloadResult{
		Path:    dest,
		Size:    downloaded,
		Elapsed: d.now().Sub(start),
	}, nil
}

func (d *Downloader) copyChunks(ctx context.Context, w io.Writer, r io.Reader, total int64, start time.Time, onProgress func(Progress)) (int64, error) {
	buf := make([]byte, d.chunkSize)
	var downloaded int64

	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if ctx.Err() != nil {
				return downloaded, d.transferError(ctx, ctx.Err())
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return downloaded, fmt.Errorf("write chunk: %w", err)
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(d.progress(downloaded, total, start))
			}
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return downloaded, nil
		default:
			return downloaded, d.transferError(ctx, readErr)
		}
	}
}

func (d *Downloader) progress(downloaded, total int64, start time.Time) Progress {
	p := Progress{
		Downloaded: downloaded,
		Total:      total,
		Elapsed:    d.now().Sub(start),
	}
	if secs := p.Elapsed.Seconds(); secs > 0 {
		p.Speed = float64(downloaded) / secs
	}
	if p.Speed > 0 && total > downloaded {
		p.ETA = time.Duration(float64(total-downloaded) / p.Speed * float64(time.Second))
	}
	return p
}

// transferError maps context cancellation to domain.ErrCancelled.
func (d *Downloader) transferError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.ErrCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("download timed out: %w", ctx.Err())
	default:
		return fmt.Errorf("download: %w", err)
	}
}

// ProgressThrottle limits progress message edits. With a known total an
// edit is allowed each time the whole percentage advances; without one,
// at most once per interval.
type ProgressThrottle struct {
	lastPercent int
	sometimes   *rate.Sometimes
}

func NewProgressThrottle(interval time.Duration) *ProgressThrottle {
	s := &rate.Sometimes{Interval: interval}
	if interval <= 0 {
		s = &rate.Sometimes{Every: 1}
	}
	return &ProgressThrottle{sometimes: s}
}

func (t *ProgressThrottle) Allow(p Progress) bool {
	if p.Total > 0 {
		pct := p.WholePercent()
		if pct > t.lastPercent {
			t.lastPercent = pct
			return true
		}
		return false
	}

	allowed := false
	t.sometimes.Do(func() { allowed = true })
	return allowed
}
