package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/set-night/bootimgbot/internal/config"
)

// Uploader hosts a file somewhere public and returns its link.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Artifact is the file that goes back to the user.
type Artifact struct {
	Path string
	Name string // display name in the chat
	Size int64
}

// DeliveryResult tells how an artifact reached the user.
type DeliveryResult struct {
	Artifact *Artifact
	Attached bool
	Link     string
}

// Delivery packages an extracted payload and sends it or uploads it.
type Delivery struct {
	repackZip      bool
	maxAttachBytes int64
	uploader       Uploader
}

func NewDelivery(repackZip bool, maxAttachBytes int64, uploader Uploader) *Delivery {
	return &Delivery{
		repackZip:      repackZip,
		maxAttachBytes: maxAttachBytes,
		uploader:       uploader,
	}
}

// ShouldAttach reports whether an artifact of size goes out as an attachment.
// Sizes at or above the threshold are uploaded instead.
func (d *Delivery) ShouldAttach(size int64) bool {
	return size < d.maxAttachBytes
}

// ArtifactName is the name the user sees for the delivered file.
func (d *Delivery) ArtifactName() string {
	if d.repackZip {
		return config.ZipArtifactName
	}
	return config.PayloadName
}

// Package turns the extracted payload into the outgoing artifact.
func (d *Delivery) Package(payloadPath string) (*Artifact, error) {
	if !d.repackZip {
		info, err := os.Stat(payloadPath)
		if err != nil {
			return nil, fmt.Errorf("stat payload: %w", err)
		}
		return &Artifact{Path: payloadPath, Name: config.PayloadName, Size: info.Size()}, nil
	}

	zipPath := payloadPath + ".zip"
	if err := zipSingle(payloadPath, zipPath, config.PayloadName); err != nil {
		os.Remove(zipPath)
		return nil, err
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return nil, fmt.Errorf("stat zip: %w", err)
	}
	return &Artifact{Path: zipPath, Name: config.ZipArtifactName, Size: info.Size()}, nil
}

// Deliver packages the payload and either attaches it through n or
// uploads it and returns the link. The caller announces the link.
func (d *Delivery) Deliver(ctx context.Context, n Notifier, chatID int64, payloadPath string) (*DeliveryResult, error) {
	artifact, err := d.Package(payloadPath)
	if err != nil {
		return nil, err
	}

	if d.ShouldAttach(artifact.Size) {
		f, err := os.Open(artifact.Path)
		if err != nil {
			return nil, fmt.Errorf("open artifact: %w", err)
		}
		defer f.Close()

		if err := n.SendDocument(ctx, chatID, artifact.Name, f); err != nil {
			return nil, fmt.Errorf("send document: %w", err)
		}
		return &DeliveryResult{Artifact: artifact, Attached: true}, nil
	}

	if d.uploader == nil {
		return nil, fmt.Errorf("%s is %d bytes and no uploader is configured", artifact.Name, artifact.Size)
	}
	uploadPath, err := d.stageUpload(artifact)
	if err != nil {
		return nil, err
	}
	link, err := d.uploader.Upload(ctx, uploadPath)
	if err != nil {
		return &DeliveryResult{Artifact: artifact}, err
	}
	return &DeliveryResult{Artifact: artifact, Link: link}, nil
}

// stageUpload gives the artifact its display name on disk, since file
// hosts name links after the uploaded file.
func (d *Delivery) stageUpload(a *Artifact) (string, error) {
	if filepath.Base(a.Path) == a.Name {
		return a.Path, nil
	}
	staged := filepath.Join(filepath.Dir(a.Path), a.Name)
	if _, err := os.Stat(staged); err == nil {
		staged = filepath.Join(filepath.Dir(a.Path), "upload-"+a.Name)
	}
	if err := os.Rename(a.Path, staged); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	a.Path = staged
	return staged, nil
}

func zipSingle(src, dst, entryName string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   strings.TrimPrefix(entryName, "/"),
		Method: zip.Deflate,
	})
	if err != nil {
		out.Close()
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finish zip: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}
