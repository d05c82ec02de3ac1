package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"chatbridge/internal/domain"
	"chatbridge/internal/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *settings.Store {
	t.Helper()
	s, err := settings.Open(context.Background(), filepath.Join(t.TempDir(), "bridge.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeChat implements domain.ChatAPI in memory.
type fakeChat struct {
	mu        sync.Mutex
	messages  []domain.InboundMessage
	listErr   error
	createErr error
	created   []string
	media     map[string][]byte // resourceName -> bytes served by DownloadMedia
	uploaded  []string          // filenames passed to UploadMedia
	uploadErr error
}

func (f *fakeChat) ListMessages(ctx context.Context, space, after string) ([]domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.InboundMessage
	for _, m := range f.messages {
		if domain.LaterTimestamp(after, m.CreateTime) == m.CreateTime && m.CreateTime != after {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeChat) CreateMessage(ctx context.Context, space, text string, media []domain.UploadedMedia) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, text)
	return fmt.Sprintf("spaces/test/messages/%d", len(f.created)), nil
}

func (f *fakeChat) UploadMedia(ctx context.Context, space, filename, contentType string, r io.Reader) (domain.UploadedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return domain.UploadedMedia{}, f.uploadErr
	}
	io.Copy(io.Discard, r)
	f.uploaded = append(f.uploaded, filename)
	return domain.UploadedMedia{ResourceName: "res/" + filename, ContentName: filename}, nil
}

func (f *fakeChat) DownloadMedia(ctx context.Context, resourceName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.media[resourceName]
	if !ok {
		return nil, fmt.Errorf("no such resource: %s", resourceName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeChat) createdTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// fakeForwarder records forwarded messages, capturing staged file contents
// before the poller's cleanup removes them.
type fakeForwarder struct {
	mu       sync.Mutex
	err      error
	messages []domain.OutboundMessage
	fileData map[string][]byte
}

func (f *fakeForwarder) Forward(ctx context.Context, msg domain.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.fileData == nil {
		f.fileData = make(map[string][]byte)
	}
	for _, path := range msg.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("staged file unreadable at forward time: %w", err)
		}
		f.fileData[filepath.Base(path)] = data
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeForwarder) forwarded() []domain.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OutboundMessage(nil), f.messages...)
}
