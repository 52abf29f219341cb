package service

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/set-night/bootimgbot/internal/domain"
)

// Extractor pulls the first member whose name ends with a suffix out of an archive.
type Extractor interface {
	Format() domain.ArchiveFormat
	// Extract writes the member under destDir, keeping its internal path,
	// and returns the written path. domain.ErrPayloadNotFound means no
	// member matched; *domain.ArchiveError means the archive is unreadable.
	Extract(archivePath, destDir, suffix string) (string, error)
}

func NewExtractor(format domain.ArchiveFormat) (Extractor, error) {
	switch format {
	case domain.FormatTarGz:
		return TarGzExtractor{}, nil
	case domain.FormatZip:
		return ZipExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

type TarGzExtractor struct{}

func (TarGzExtractor) Format() domain.ArchiveFormat {
	return domain.FormatTarGz
}

func (e TarGzExtractor) Extract(archivePath, destDir, suffix string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", e.invalid(err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return "", domain.ErrPayloadNotFound
		}
		if err != nil {
			return "", e.invalid(err)
		}

		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, suffix) {
			continue
		}

		dest, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return "", e.invalid(err)
		}
		if err := writeMember(dest, tr); err != nil {
			var ae *domain.ArchiveError
			if errors.As(err, &ae) {
				ae.Format = e.Format()
			}
			return "", err
		}
		return dest, nil
	}
}

func (e TarGzExtractor) invalid(err error) error {
	return &domain.ArchiveError{Format: e.Format(), Err: err}
}

type ZipExtractor struct{}

func (ZipExtractor) Format() domain.ArchiveFormat {
	return domain.FormatZip
}

func (e ZipExtractor) Extract(archivePath, destDir, suffix string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("open archive: %w", err)
		}
		return "", e.invalid(err)
	}
	defer r.Close()

	for _, file := range r.File {
		if file.FileInfo().IsDir() || !strings.HasSuffix(file.Name, suffix) {
			continue
		}

		dest, err := safeJoin(destDir, file.Name)
		if err != nil {
			return "", e.invalid(err)
		}
		rc, err := file.Open()
		if err != nil {
			return "", e.invalid(err)
		}
		err = writeMember(dest, rc)
		rc.Close()
		if err != nil {
			var ae *domain.ArchiveError
			if errors.As(err, &ae) {
				ae.Format = e.Format()
			}
			return "", err
		}
		return dest, nil
	}
	return "", domain.ErrPayloadNotFound
}

func (e ZipExtractor) invalid(err error) error {
	return &domain.ArchiveError{Format: e.Format(), Err: err}
}

// writeMember copies an archive member to dest. Read failures mean a
// corrupt archive and come back as *domain.ArchiveError.
func writeMember(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create member dir: %w", err)
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create member file: %w", err)
	}

	_, copyErr := io.Copy(out, readErrTagger{r})
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(dest)
		var re readError
		if errors.As(copyErr, &re) {
			return &domain.ArchiveError{Err: re.err}
		}
		return fmt.Errorf("write member: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(dest)
		return fmt.Errorf("close member file: %w", closeErr)
	}
	return nil
}

// readErrTagger marks errors coming from the archive side of io.Copy.
type readErrTagger struct {
	r io.Reader
}

func (t readErrTagger) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		return n, readError{err}
	}
	return n, err
}

type readError struct {
	err error
}

func (e readError) Error() string { return e.err.Error() }

// safeJoin joins an archive member name under dir, rejecting absolute
// paths and names that climb out of dir.
func safeJoin(dir, name string) (string, error) {
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("member path contains backslash: %s", name)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("member path is absolute: %s", name)
	}
	dest := filepath.Join(dir, name)
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("member path escapes destination: %s", name)
	}
	return dest, nil
}
