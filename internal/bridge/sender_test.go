package bridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"chatbridge/internal/domain"
)

// flakyChat fails CreateMessage until failures attempts have been consumed.
type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) ListMessages(ctx context.Context, space, after string) ([]domain.InboundMessage, error) {
	return nil, nil
}

func (f *flakyChat) CreateMessage(ctx context.Context, space, text string, media []domain.UploadedMedia) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return "spaces/test/messages/ok", nil
}

func (f *flakyChat) UploadMedia(ctx context.Context, space, filename, contentType string, r io.Reader) (domain.UploadedMedia, error) {
	return domain.UploadedMedia{}, errors.New("unused")
}

func (f *flakyChat) DownloadMedia(ctx context.Context, resourceName string) (io.ReadCloser, error) {
	return nil, errors.New("unused")
}

func newTestSender(t *testing.T, chat domain.ChatAPI) *ChatSender {
	t.Helper()
	store := newTestStore(t)
	store.Update(context.Background(), func(st *domain.Settings) {
		st.SpaceID = "spaces/test"
	})
	return &ChatSender{
		chat:     chat,
		store:    store,
		logger:   testLogger(),
		attempts: defaultSendAttempts,
		delay:    time.Millisecond,
	}
}

func TestSend_UnboundSpace(t *testing.T) {
	s := &ChatSender{
		chat:     &flakyChat{},
		store:    newTestStore(t),
		logger:   testLogger(),
		attempts: defaultSendAttempts,
		delay:    time.Millisecond,
	}
	if _, err := s.Send(context.Background(), "hi", nil); err == nil {
		t.Fatal("expected error for unbound space")
	}
}

func TestSendWithRetry_StopsOnSuccess(t *testing.T) {
	chat := &flakyChat{failures: 2}
	s := newTestSender(t, chat)

	id, err := s.SendWithRetry(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
	if id == "" {
		t.Fatal("expected message name on success")
	}
	if chat.calls != 3 {
		t.Fatalf("calls = %d, want 3", chat.calls)
	}
}

func TestSendWithRetry_ExhaustsAttempts(t *testing.T) {
	chat := &flakyChat{failures: 100}
	s := newTestSender(t, chat)

	_, err := s.SendWithRetry(context.Background(), "hi", nil)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if chat.calls != defaultSendAttempts {
		t.Fatalf("calls = %d, want %d", chat.calls, defaultSendAttempts)
	}
	if !strings.Contains(err.Error(), "after 5 attempts") {
		t.Fatalf("err = %v, want attempt count in message", err)
	}
}

func TestSendWithRetry_ContextCancelled(t *testing.T) {
	chat := &flakyChat{failures: 100}
	s := newTestSender(t, chat)
	s.delay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.SendWithRetry(ctx, "hi", nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendWithRetry did not observe cancellation")
	}
}

func TestForward_UnboundWebhookDrops(t *testing.T) {
	f := NewWebhookForwarder(nil, newTestStore(t), testLogger())
	err := f.Forward(context.Background(), domain.OutboundMessage{Text: "hi"})
	if err != nil {
		t.Fatalf("Forward with unbound webhook: %v", err)
	}
}

func TestForward_EmptyPayloadDrops(t *testing.T) {
	store := newTestStore(t)
	store.Update(context.Background(), func(st *domain.Settings) {
		st.Webhook = domain.WebhookRef{ID: "1", Token: "t"}
	})
	f := NewWebhookForwarder(nil, store, testLogger())
	if err := f.Forward(context.Background(), domain.OutboundMessage{}); err != nil {
		t.Fatalf("Forward with empty payload: %v", err)
	}
}
