package handler

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/klauspost/compress/gzip"
	"github.com/m-mizutani/gt"
	"github.com/set-night/bootimgbot/internal/config"
	"github.com/set-night/bootimgbot/internal/domain"
	"github.com/set-night/bootimgbot/internal/service"
	"github.com/set-night/bootimgbot/internal/telegram"
)

type apiCall struct {
	method string
	params map[string]string
	files  map[string][]byte
}

// fakeAPI answers every Bot API method with a generic message.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	nextID int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	call := apiCall{method: method, params: map[string]string{}, files: map[string][]byte{}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(64 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				call.params[k] = v[0]
			}
			for k, fhs := range r.MultipartForm.File {
				fh, err := fhs[0].Open()
				if err == nil {
					data, _ := io.ReadAll(fh)
					fh.Close()
					call.files[k] = data
					call.params[k+"_name"] = fhs[0].Filename
				}
			}
		}
	case "application/json":
		var m map[string]any
		if err := json.NewDecoder(r.Body).Decode(&m); err == nil {
			for k, v := range m {
				switch vv := v.(type) {
				case string:
					call.params[k] = vv
				default:
					b, _ := json.Marshal(vv)
					call.params[k] = string(b)
				}
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if method == "answerCallbackQuery" || method == "deleteWebhook" {
		io.WriteString(w, `{"ok":true,"result":true}`)
		return
	}
	chatID, _ := strconv.ParseInt(call.params["chat_id"], 10, 64)
	fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"}}}`, id, chatID)
}

func (f *fakeAPI) find(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// texts returns everything sent or edited so far.
func (f *fakeAPI) texts() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sb strings.Builder
	for _, c := range f.calls {
		if t, ok := c.params["text"]; ok {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

type doneRecorder chan *domain.DownloadJob

func (d doneRecorder) Record(_ context.Context, job *domain.DownloadJob) error {
	d <- job
	return nil
}

type fixture struct {
	api      *fakeAPI
	bot      *bot.Bot
	handler  *Handler
	sessions *service.SessionStore
	done     doneRecorder
}

func newFixture(t *testing.T, mode domain.ConfirmMode) *fixture {
	t.Helper()

	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := bot.New("123:test", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	gt.NoError(t, err)

	cfg := &config.Config{
		WorkDir:        t.TempDir(),
		ArchiveFormat:  "tgz",
		ConfirmMode:    string(mode),
		RepackZip:      true,
		ChunkSize:      32 * 1024,
		MaxAttachBytes: 50 * 1024 * 1024,
		AdminIDs:       []int64{100},
	}

	ws, err := service.NewWorkspace(cfg.WorkDir)
	gt.NoError(t, err)
	ex, err := service.NewExtractor(cfg.Format())
	gt.NoError(t, err)

	sessions := service.NewSessionStore()
	done := make(doneRecorder, 1)
	wf := service.NewWorkflow(service.WorkflowDeps{
		Sessions:         sessions,
		Workspace:        ws,
		Downloader:       service.NewDownloader(nil, cfg.ChunkSize),
		Extractor:        ex,
		Delivery:         service.NewDelivery(cfg.RepackZip, cfg.MaxAttachBytes, nil),
		Recorder:         done,
		Notifier:         telegram.NewMessenger(b),
		ProgressInterval: time.Millisecond,
	})

	h := New(Deps{
		Bot:       b,
		Cfg:       cfg,
		Sessions:  sessions,
		Workspace: ws,
		Prober:    service.NewProber(nil),
		Workflow:  wf,
	})

	return &fixture{api: api, bot: b, handler: h, sessions: sessions, done: done}
}

func textUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			ID:   1,
			Chat: models.Chat{ID: chatID},
			From: &models.User{ID: chatID, FirstName: "Alex"},
			Text: text,
		},
	}
}

func callbackUpdate(chatID int64, data string, messageID int) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "q1",
			From: models.User{ID: chatID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: messageID, Chat: models.Chat{ID: chatID}},
			},
		},
	}
}

func romServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	gt.NoError(t, tw.WriteHeader(&tar.Header{Name: "system/boot.img", Mode: 0o644, Size: int64(len(payload)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(payload)
	gt.NoError(t, err)
	gt.NoError(t, tw.Close())
	gt.NoError(t, gz.Close())
	data := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="miui_fastboot.tgz"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadFlow_Buttons(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	ctx := context.Background()
	rom := romServer(t, bytes.Repeat([]byte{0xAB}, 100*1024))

	// plain text is ignored until /download
	f.handler.HandleDefault(ctx, f.bot, textUpdate(1, rom.URL+"/rom.tgz"))
	_, ok := f.sessions.Get(1)
	gt.True(t, !ok)

	f.handler.handleDownload(ctx, f.bot, textUpdate(1, "/download"))
	gt.True(t, f.sessions.IsExpectingURL(1))
	gt.String(t, f.api.texts()).Contains("Fastboot ROM (TGZ file) URL")

	f.handler.HandleDefault(ctx, f.bot, textUpdate(1, rom.URL+"/rom.tgz"))
	gt.True(t, !f.sessions.IsExpectingURL(1))
	sess, ok := f.sessions.Get(1)
	gt.True(t, ok)
	gt.Equal(t, sess.FileName, "miui_fastboot.tgz")
	gt.Equal(t, sess.Phase, domain.PhaseConfirming)
	gt.String(t, f.api.texts()).Contains("📤 File Info:\nName: miui_fastboot.tgz")

	sends := f.api.find("sendMessage")
	gt.String(t, sends[len(sends)-1].params["reply_markup"]).Contains(telegram.CallbackDownload)

	// rename through the button, then by text
	f.handler.handleRenameCallback(ctx, f.bot, callbackUpdate(1, telegram.CallbackRename, 50))
	gt.Equal(t, f.sessions.Phase(1), domain.PhaseRenaming)
	f.handler.HandleDefault(ctx, f.bot, textUpdate(1, "my rom"))
	sess, _ = f.sessions.Get(1)
	gt.Equal(t, sess.FileName, "my rom.tgz")
	gt.Equal(t, sess.Phase, domain.PhaseConfirming)

	f.handler.handleDownloadCallback(ctx, f.bot, callbackUpdate(1, telegram.CallbackDownload, 60))

	select {
	case job := <-f.done:
		gt.Equal(t, job.Status, domain.JobDelivered)
		gt.Equal(t, job.FileName, "my rom.tgz")
	case <-time.After(10 * time.Second):
		t.Fatal("workflow did not finish")
	}

	docs := f.api.find("sendDocument")
	gt.Equal(t, len(docs), 1)
	gt.Equal(t, docs[0].params["document_name"], "boot.zip")
	gt.String(t, f.api.texts()).Contains("✅ Process completed")

	_, ok = f.sessions.Get(1)
	gt.True(t, !ok)
}

func TestDownloadFlow_TextCancel(t *testing.T) {
	f := newFixture(t, domain.ConfirmText)
	ctx := context.Background()
	rom := romServer(t, []byte("boot"))

	f.handler.handleDownload(ctx, f.bot, textUpdate(2, "/download"))
	f.handler.HandleDefault(ctx, f.bot, textUpdate(2, rom.URL))
	gt.String(t, f.api.texts()).Contains("Reply yes to download")

	f.handler.HandleDefault(ctx, f.bot, textUpdate(2, "maybe"))
	gt.Equal(t, f.sessions.Phase(2), domain.PhaseConfirming)

	f.handler.HandleDefault(ctx, f.bot, textUpdate(2, "No"))
	_, ok := f.sessions.Get(2)
	gt.True(t, !ok)
	gt.String(t, f.api.texts()).Contains("🚫 Download canceled.")
}

func TestDownloadFlow_TextConfirm(t *testing.T) {
	f := newFixture(t, domain.ConfirmText)
	ctx := context.Background()
	payload := bytes.Repeat([]byte{0x5A}, 64*1024)
	rom := romServer(t, payload)

	f.handler.handleDownload(ctx, f.bot, textUpdate(9, "/download"))
	f.handler.HandleDefault(ctx, f.bot, textUpdate(9, rom.URL+"/rom.tgz"))
	gt.Equal(t, f.sessions.Phase(9), domain.PhaseConfirming)

	f.handler.HandleDefault(ctx, f.bot, textUpdate(9, "Rename"))
	gt.Equal(t, f.sessions.Phase(9), domain.PhaseRenaming)
	gt.String(t, f.api.texts()).Contains("Send the new file name without extension. .tgz will be added.")

	f.handler.HandleDefault(ctx, f.bot, textUpdate(9, "stock"))
	sess, ok := f.sessions.Get(9)
	gt.True(t, ok)
	gt.Equal(t, sess.FileName, "stock.tgz")
	gt.Equal(t, sess.Phase, domain.PhaseConfirming)
	gt.String(t, f.api.texts()).Contains("Name: stock.tgz")

	// a second URL during confirmation is refused and changes nothing
	f.handler.HandleDefault(ctx, f.bot, textUpdate(9, rom.URL+"/other.tgz"))
	gt.String(t, f.api.texts()).Contains("A download is already active for this chat.")
	sess, _ = f.sessions.Get(9)
	gt.Equal(t, sess.FileName, "stock.tgz")
	gt.Equal(t, sess.Phase, domain.PhaseConfirming)

	f.handler.HandleDefault(ctx, f.bot, textUpdate(9, "yes"))

	select {
	case job := <-f.done:
		gt.Equal(t, job.Status, domain.JobDelivered)
		gt.Equal(t, job.FileName, "stock.tgz")
		gt.Equal(t, job.ChatID, int64(9))
	case <-time.After(10 * time.Second):
		t.Fatal("workflow did not finish")
	}

	// text mode has no message to edit, so a fresh progress message is sent
	var progress *apiCall
	for _, c := range f.api.find("sendMessage") {
		if c.params["text"] == "Downloading... Please wait." {
			progress = &c
		}
	}
	if progress == nil {
		t.Fatal("no progress message was sent")
	}
	gt.String(t, progress.params["reply_markup"]).Contains(telegram.CallbackCancel)

	docs := f.api.find("sendDocument")
	gt.Equal(t, len(docs), 1)
	gt.Equal(t, docs[0].params["document_name"], "boot.zip")
	gt.String(t, f.api.texts()).Contains("✅ Process completed")

	_, ok = f.sessions.Get(9)
	gt.True(t, !ok)
	gt.True(t, !f.sessions.IsExpectingURL(9))
}

func TestDownloadFlow_SecondURLRejected(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	ctx := context.Background()
	rom := romServer(t, []byte("boot"))

	f.handler.handleDownload(ctx, f.bot, textUpdate(10, "/download"))
	f.handler.HandleDefault(ctx, f.bot, textUpdate(10, rom.URL+"/first.tgz"))
	sess, ok := f.sessions.Get(10)
	gt.True(t, ok)
	gt.Equal(t, sess.URL, rom.URL+"/first.tgz")

	f.handler.HandleDefault(ctx, f.bot, textUpdate(10, rom.URL+"/second.tgz"))
	f.handler.handleDownload(ctx, f.bot, textUpdate(10, "/download"))

	texts := f.api.texts()
	gt.String(t, texts).Contains("A download is already active for this chat.")
	gt.String(t, texts).Contains("You already have a download in progress.")
	gt.True(t, !f.sessions.IsExpectingURL(10))

	sess, ok = f.sessions.Get(10)
	gt.True(t, ok)
	gt.Equal(t, sess.URL, rom.URL+"/first.tgz")
	gt.Equal(t, sess.Phase, domain.PhaseConfirming)
}

func TestDownloadFlow_InvalidURL(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	ctx := context.Background()

	f.handler.handleDownload(ctx, f.bot, textUpdate(3, "/download"))
	f.handler.HandleDefault(ctx, f.bot, textUpdate(3, "ftp://example.com/rom.tgz"))

	gt.String(t, f.api.texts()).Contains("❌ Invalid URL.")
	gt.True(t, !f.sessions.IsExpectingURL(3))
	_, ok := f.sessions.Get(3)
	gt.True(t, !ok)
}

func TestDownloadFlow_Unreachable(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	ctx := context.Background()

	dead := httptest.NewServer(http.NotFoundHandler())
	addr := dead.URL
	dead.Close()

	f.handler.handleDownload(ctx, f.bot, textUpdate(4, "/download"))
	f.handler.HandleDefault(ctx, f.bot, textUpdate(4, addr+"/rom.tgz"))

	gt.String(t, f.api.texts()).Contains("Failed to get file info:")
	_, ok := f.sessions.Get(4)
	gt.True(t, !ok)
}

func TestCancel_NoSession(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)

	f.handler.handleCancelCommand(context.Background(), f.bot, textUpdate(5, "/cancel"))
	gt.String(t, f.api.texts()).Contains("No active download found.")
}

func TestCancel_Processing(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	gt.NoError(t, f.sessions.Begin(6, &domain.RemoteFile{URL: "https://example.com/a.tgz", Name: "a.tgz"}))
	_, err := f.sessions.StartDownload(6, func() {}, 1)
	gt.NoError(t, err)
	gt.NoError(t, f.sessions.SetPhase(6, domain.PhaseProcessing))

	f.handler.handleCancelCommand(context.Background(), f.bot, textUpdate(6, "/cancel"))
	gt.String(t, f.api.texts()).Contains("cannot be canceled now")
	gt.Equal(t, f.sessions.Phase(6), domain.PhaseProcessing)
}

func TestCancelCallback_Processing(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	gt.NoError(t, f.sessions.Begin(11, &domain.RemoteFile{URL: "https://example.com/a.tgz", Name: "a.tgz"}))
	cancelled := false
	_, err := f.sessions.StartDownload(11, func() { cancelled = true }, 20)
	gt.NoError(t, err)
	gt.NoError(t, f.sessions.SetPhase(11, domain.PhaseProcessing))

	f.handler.handleCancelCallback(context.Background(), f.bot, callbackUpdate(11, telegram.CallbackCancel, 20))

	gt.True(t, !cancelled)
	gt.Equal(t, f.sessions.Phase(11), domain.PhaseProcessing)
	gt.String(t, f.api.texts()).Contains("cannot be canceled now")
	answers := f.api.find("answerCallbackQuery")
	gt.Equal(t, len(answers), 1)
	gt.True(t, !strings.Contains(answers[0].params["text"], "Canceling"))
}

func TestFiles(t *testing.T) {
	f := newFixture(t, domain.ConfirmButtons)
	ctx := context.Background()

	dir := filepath.Join(f.handler.workspace.Root(), "7-abc")
	gt.NoError(t, os.MkdirAll(filepath.Join(dir, "system"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "system", "boot.img"), []byte("boot"), 0o644))

	f.handler.handleShowFiles(ctx, f.bot, textUpdate(100, "/showfiles"))
	gt.String(t, f.api.texts()).Contains("1) 7-abc/system/boot.img (4 B)")

	// refused while a download runs
	gt.NoError(t, f.sessions.Begin(7, &domain.RemoteFile{URL: "https://example.com/a.tgz", Name: "a.tgz"}))
	_, err := f.sessions.StartDownload(7, func() {}, 1)
	gt.NoError(t, err)
	f.handler.handleDeleteFiles(ctx, f.bot, textUpdate(100, "/deletefiles"))
	gt.String(t, f.api.texts()).Contains("Downloads are still running")
	_, err = os.Stat(dir)
	gt.NoError(t, err)

	f.sessions.Clear(7)
	f.handler.handleDeleteFiles(ctx, f.bot, textUpdate(100, "/deletefiles"))
	gt.String(t, f.api.texts()).Contains("🗑️ All files in")
	_, err = os.Stat(dir)
	gt.True(t, os.IsNotExist(err))

	// non-admins are ignored once admins are configured
	before := len(f.api.find("sendMessage"))
	f.handler.handleShowFiles(ctx, f.bot, textUpdate(8, "/showfiles"))
	gt.Equal(t, len(f.api.find("sendMessage")), before)
}

func TestRenamedFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "my rom", want: "my rom.tgz"},
		{in: " firmware.TGZ ", want: "firmware.TGZ"},
		{in: "", wantErr: true},
		{in: "..", wantErr: true},
		{in: "a/b", wantErr: true},
		{in: `a\b`, wantErr: true},
		{in: strings.Repeat("x", config.MaxFileNameLen+1), wantErr: true},
		{in: "bad\x00name", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := renamedFileName(tt.in, domain.FormatTarGz)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, got, tt.want)
		})
	}
}
