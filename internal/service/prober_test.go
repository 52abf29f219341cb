package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/set-night/bootimgbot/internal/domain"
	"github.com/set-night/bootimgbot/internal/service"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https", url: "https://example.com/rom.tgz"},
		{name: "http", url: "http://example.com/rom.zip"},
		{name: "ftp", url: "ftp://example.com/rom.tgz", wantErr: true},
		{name: "no scheme", url: "example.com/rom.tgz", wantErr: true},
		{name: "no host", url: "https://", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateURL(tt.url)
			if tt.wantErr {
				gt.True(t, errors.Is(err, domain.ErrInvalidURL))
				return
			}
			gt.NoError(t, err)
		})
	}
}

func TestFileNameFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		disposition string
		want        string
	}{
		{
			name:        "quoted filename",
			url:         "https://example.com/download?id=1",
			disposition: `attachment; filename="rom.tgz"`,
			want:        "rom.tgz",
		},
		{
			name:        "unquoted filename",
			url:         "https://example.com/download",
			disposition: "attachment; filename=rom.tgz",
			want:        "rom.tgz",
		},
		{
			name:        "encoded filename wins",
			url:         "https://example.com/download",
			disposition: `attachment; filename="fallback.tgz"; filename*=UTF-8''r%C3%B6m%20v2.tgz`,
			want:        "röm v2.tgz",
		},
		{
			name:        "path in filename is stripped",
			url:         "https://example.com/download",
			disposition: `attachment; filename="../../etc/rom.tgz"`,
			want:        "rom.tgz",
		},
		{
			name: "url path",
			url:  "https://example.com/files/miui_rom.zip?token=abc",
			want: "miui_rom.zip",
		},
		{
			name:        "disposition without filename",
			url:         "https://example.com/files/rom.tgz",
			disposition: "attachment",
			want:        "rom.tgz",
		},
		{
			name: "fallback",
			url:  "https://example.com/",
			want: "unknown_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.disposition != "" {
				h.Set("Content-Disposition", tt.disposition)
			}
			gt.Equal(t, service.FileNameFromResponse(tt.url, h), tt.want)
		})
	}
}

func TestProber_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "/rom.tgz", http.StatusFound)
		case "/rom.tgz":
			gt.Equal(t, r.Method, http.MethodHead)
			w.Header().Set("Content-Length", "1048576")
			w.Header().Set("Content-Disposition", `attachment; filename="miui.tgz"`)
			w.WriteHeader(http.StatusOK)
		case "/unknown":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := service.NewProber(srv.Client())
	ctx := context.Background()

	t.Run("name and size", func(t *testing.T) {
		f, err := p.Probe(ctx, srv.URL+"/redirect")
		gt.NoError(t, err)
		gt.Equal(t, f.Name, "miui.tgz")
		gt.Equal(t, f.Size, int64(1048576))
		gt.Equal(t, f.URL, srv.URL+"/redirect")
		gt.Equal(t, f.HumanSize(), "1.0 MiB")
	})

	t.Run("unknown size", func(t *testing.T) {
		f, err := p.Probe(ctx, srv.URL+"/unknown")
		gt.NoError(t, err)
		gt.Equal(t, f.Size, int64(0))
		gt.Equal(t, f.HumanSize(), "Unknown")
		gt.Equal(t, f.Name, "unknown")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := p.Probe(ctx, srv.URL+"/missing")
		gt.Error(t, err)
		gt.String(t, err.Error()).Contains("404")
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := p.Probe(ctx, "ftp://example.com/rom.tgz")
		gt.True(t, errors.Is(err, domain.ErrInvalidURL))
	})

	t.Run("unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		addr := dead.URL
		dead.Close()

		_, err := p.Probe(ctx, addr+"/rom.tgz")
		gt.Error(t, err)
	})
}
