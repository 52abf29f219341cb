package service

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/domain"
)

// Prober learns a remote file's name and size without downloading it.
type Prober struct {
	httpClient *http.Client
}

func NewProber(httpClient *http.Client) *Prober {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.ProbeTimeout}
	}
	return &Prober{httpClient: httpClient}
}

// ValidateURL accepts only absolute http(s) URLs.
func ValidateURL(raw string) error {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return domain.ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return domain.ErrInvalidURL
	}
	return nil
}

// Probe issues a HEAD request, following redirects.
func (p *Prober) Probe(ctx context.Context, rawURL string) (*domain.RemoteFile, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("probe %s: unexpected status %s", rawURL, resp.Status)
	}

	return &domain.RemoteFile{
		URL:  rawURL,
		Name: FileNameFromResponse(rawURL, resp.Header),
		Size: responseSize(resp),
	}, nil
}

// FileNameFromResponse resolves the file name from Content-Disposition,
// then the URL path, then a fixed fallback. RFC 5987 filename* values are
// decoded by mime.ParseMediaType and take precedence over filename.
func FileNameFromResponse(rawURL string, h http.Header) string {
	if cd := h.Get("Content-Disposition"); cd != "" {
		if name := dispositionFileName(cd); name != "" {
			return name
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		if name := sanitizeFileName(path.Base(u.Path)); name != "" {
			return name
		}
	}

	return config.FallbackFileName
}

func dispositionFileName(cd string) string {
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		return sanitizeFileName(params["filename"])
	}
	// Malformed headers: take whatever follows the last filename= verbatim.
	i := strings.LastIndex(cd, "filename=")
	if i < 0 {
		return ""
	}
	v := cd[i+len("filename="):]
	if j := strings.IndexByte(v, ';'); j >= 0 {
		v = v[:j]
	}
	return sanitizeFileName(strings.Trim(strings.TrimSpace(v), `"`))
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

func responseSize(resp *http.Response) int64 {
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	v := resp.Header.Get("Content-Length")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
