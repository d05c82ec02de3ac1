package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/metrics"
	"chatbridge/internal/settings"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultSendAttempts = 5
	defaultRetryDelay   = time.Second

	// Shown on webhook posts until a sender sets a profile.
	defaultWebhookName   = "Google Chat"
	defaultWebhookAvatar = "https://developers.google.com/static/workspace/chat/images/quickstart-app-avatar.png"
)

// ChatSender posts composed messages into the bound Google Chat space.
// Failures come back as values, never panics, so the caller's retry loop can
// inspect outcomes.
type ChatSender struct {
	chat     domain.ChatAPI
	store    *settings.Store
	logger   *slog.Logger
	attempts int
	delay    time.Duration
}

// NewChatSender builds a sender; attempts and delay fall back to the
// defaults when zero.
func NewChatSender(chat domain.ChatAPI, store *settings.Store, logger *slog.Logger, attempts int, delay time.Duration) *ChatSender {
	if attempts <= 0 {
		attempts = defaultSendAttempts
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &ChatSender{
		chat:     chat,
		store:    store,
		logger:   logger,
		attempts: attempts,
		delay:    delay,
	}
}

// Send posts once into the currently bound space.
func (s *ChatSender) Send(ctx context.Context, text string, media []domain.UploadedMedia) (string, error) {
	st := s.store.Snapshot()
	if st.SpaceID == "" {
		return "", fmt.Errorf("no Google Chat space bound")
	}
	return s.chat.CreateMessage(ctx, st.SpaceID, text, media)
}

// SendWithRetry attempts Send up to the configured attempt count with a
// fixed delay between attempts, stopping on the first success. Exhausting
// the attempts returns the last error; the message is then dropped, there
// is no outbox.
func (s *ChatSender) SendWithRetry(ctx context.Context, text string, media []domain.UploadedMedia) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		id, err := s.Send(ctx, text, media)
		if err == nil {
			return id, nil
		}
		lastErr = err
		s.logger.Warn("chat send failed", "attempt", attempt, "err", err)

		if attempt < s.attempts {
			metrics.SendRetries.Inc()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}
	return "", fmt.Errorf("send failed after %d attempts: %w", s.attempts, lastErr)
}

// WebhookForwarder delivers bridged messages through the Discord webhook,
// overriding the display name and avatar per message.
type WebhookForwarder struct {
	session *discordgo.Session
	store   *settings.Store
	logger  *slog.Logger
}

var _ domain.Forwarder = (*WebhookForwarder)(nil)

func NewWebhookForwarder(session *discordgo.Session, store *settings.Store, logger *slog.Logger) *WebhookForwarder {
	return &WebhookForwarder{session: session, store: store, logger: logger}
}

// Forward posts one message through the webhook. An unbound webhook is a
// valid pre-initialization state: the message is dropped silently with a
// nil error.
func (f *WebhookForwarder) Forward(ctx context.Context, msg domain.OutboundMessage) error {
	st := f.store.Snapshot()
	if st.Webhook.ID == "" || st.Webhook.Token == "" {
		f.logger.Debug("no webhook bound, dropping outbound message")
		return nil
	}
	if msg.Text == "" && len(msg.Files) == 0 {
		// Discord rejects completely empty payloads.
		return nil
	}

	params := &discordgo.WebhookParams{
		Content:   msg.Text,
		Username:  msg.DisplayName,
		AvatarURL: msg.AvatarURL,
	}
	if params.Username == "" {
		params.Username = defaultWebhookName
	}
	if params.AvatarURL == "" {
		params.AvatarURL = defaultWebhookAvatar
	}

	var open []*os.File
	defer func() {
		for _, fh := range open {
			fh.Close()
		}
	}()
	for _, path := range msg.Files {
		fh, err := os.Open(path)
		if err != nil {
			f.logger.Error("cannot open staged attachment", "path", path, "err", err)
			continue
		}
		open = append(open, fh)
		params.Files = append(params.Files, &discordgo.File{
			Name:   filepath.Base(path),
			Reader: fh,
		})
	}

	if _, err := f.session.WebhookExecute(st.Webhook.ID, st.Webhook.Token, true, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("webhook execute: %w", err)
	}
	metrics.MessagesToDiscord.Inc()
	return nil
}
