package service_test

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/m-mizutani/gt"
)

type member struct {
	name string
	body []byte
	dir  bool
}

func buildTarGz(t *testing.T, members ...member) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: 0o644, Size: int64(len(m.body)), Typeflag: tar.TypeReg}
		if m.dir {
			hdr = &tar.Header{Name: m.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		gt.NoError(t, tw.WriteHeader(hdr))
		if !m.dir {
			_, err := tw.Write(m.body)
			gt.NoError(t, err)
		}
	}
	gt.NoError(t, tw.Close())
	gt.NoError(t, gz.Close())
	return buf.Bytes()
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		name := m.name
		if m.dir {
			_, err := zw.Create(name + "/")
			gt.NoError(t, err)
			continue
		}
		w, err := zw.Create(name)
		gt.NoError(t, err)
		_, err = w.Write(m.body)
		gt.NoError(t, err)
	}
	gt.NoError(t, zw.Close())
	return buf.Bytes()
}

// pattern returns n deterministic bytes.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

type sentDocument struct {
	chatID int64
	name   string
	body   []byte
}

type sentLink struct {
	text  string
	label string
	link  string
}

type fakeNotifier struct {
	mu        sync.Mutex
	nextID    int
	messages  []string
	edits     []string
	progress  []string
	documents []sentDocument
	links     []sentLink
	sendErr   error
}

func (n *fakeNotifier) Send(_ context.Context, _ int64, text string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return 0, n.sendErr
	}
	n.nextID++
	n.messages = append(n.messages, text)
	return n.nextID, nil
}

func (n *fakeNotifier) Edit(_ context.Context, _ int64, _ int, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edits = append(n.edits, text)
	return nil
}

func (n *fakeNotifier) EditProgress(_ context.Context, _ int64, _ int, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, text)
	return nil
}

func (n *fakeNotifier) SendDocument(_ context.Context, chatID int64, name string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.documents = append(n.documents, sentDocument{chatID: chatID, name: name, body: body})
	return nil
}

func (n *fakeNotifier) SendLink(_ context.Context, _ int64, text, label, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, sentLink{text: text, label: label, link: link})
	return nil
}

func (n *fakeNotifier) all() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fmt.Sprint(n.messages, n.edits)
}

type fakeUploader struct {
	calls int
	link  string
	err   error
	paths []string
}

func (u *fakeUploader) Upload(_ context.Context, path string) (string, error) {
	u.calls++
	u.paths = append(u.paths, path)
	if u.err != nil {
		return "", u.err
	}
	return u.link, nil
}
