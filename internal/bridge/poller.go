package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/format"
	"chatbridge/internal/metrics"
	"chatbridge/internal/settings"
)

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultErrorInterval = 200 * time.Millisecond
)

// Poller is the Google Chat side of the bridge: a single long-lived loop
// that fetches messages past the watermark, intercepts commands, stages
// attachments, and forwards the rest to Discord.
type Poller struct {
	chat     domain.ChatAPI
	forward  domain.Forwarder
	store    *settings.Store
	commands *Interpreter
	logger   *slog.Logger

	downloadDir   string
	pollInterval  time.Duration
	errorInterval time.Duration
	ready         <-chan struct{}
}

// PollerConfig configures the poller.
type PollerConfig struct {
	Chat        domain.ChatAPI
	Forward     domain.Forwarder
	Store       *settings.Store
	Commands    *Interpreter
	DownloadDir string
	// PollInterval is the sleep between cycles; ErrorInterval is the
	// shorter sleep after a fetch-level failure.
	PollInterval  time.Duration
	ErrorInterval time.Duration
	// Ready gates the first fetch until the Discord side has a webhook
	// target to reply through.
	Ready  <-chan struct{}
	Logger *slog.Logger
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorInterval <= 0 {
		cfg.ErrorInterval = defaultErrorInterval
	}
	return &Poller{
		chat:          cfg.Chat,
		forward:       cfg.Forward,
		store:         cfg.Store,
		commands:      cfg.Commands,
		logger:        cfg.Logger,
		downloadDir:   cfg.DownloadDir,
		pollInterval:  cfg.PollInterval,
		errorInterval: cfg.ErrorInterval,
		ready:         cfg.Ready,
	}
}

// Run executes the poll loop until the context is cancelled. The loop never
// exits on a transient error; a failed cycle is logged and retried after the
// error interval. Shutdown happens between iterations, never mid-message.
func (p *Poller) Run(ctx context.Context) error {
	if p.ready != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ready:
		}
	}
	p.logger.Info("chat poller started")

	for {
		delay := p.pollInterval
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("poll cycle failed", "err", err)
			metrics.PollErrors.Inc()
			delay = p.errorInterval
		}

		select {
		case <-ctx.Done():
			p.logger.Info("chat poller stopping")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// pollOnce runs one fetch-and-process cycle. The watermark advances to each
// message's creation time whether or not processing it succeeded, so one
// poison message can never wedge the relay; settings are persisted once
// after the batch.
func (p *Poller) pollOnce(ctx context.Context) error {
	st := p.store.Snapshot()
	if st.SpaceID == "" {
		// No binding yet; nothing to poll.
		return nil
	}

	msgs, err := p.chat.ListMessages(ctx, st.SpaceID, st.Watermark)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	metrics.MessagesPolled.Add(int64(len(msgs)))

	watermark := st.Watermark
	for _, msg := range msgs {
		p.logger.Info("chat message received", "sender", msg.SenderID, "name", msg.Name)
		p.processMessage(ctx, msg)
		watermark = msg.CreateTime
	}

	return p.store.Update(ctx, func(s *domain.Settings) {
		s.Watermark = watermark
	})
}

// processMessage handles a single inbound message. Failures here are
// per-message: logged and dropped, never propagated to the loop.
func (p *Poller) processMessage(ctx context.Context, msg domain.InboundMessage) {
	// Fresh snapshot per message so a command's mutations are visible to
	// the messages after it in the same batch.
	st := p.store.Snapshot()

	if st.IsBlocked(msg.SenderID) {
		p.logger.Debug("blocked sender, skipping", "sender", msg.SenderID)
		return
	}

	if handled, reply := p.commands.Handle(ctx, msg.Text, msg.SenderID); handled {
		if reply == "" {
			return
		}
		if _, err := p.chat.CreateMessage(ctx, st.SpaceID, reply, nil); err != nil {
			p.logger.Error("failed to send command reply", "err", err)
		}
		return
	}

	text := format.ToDiscord(msg.Text)
	user := st.ResolveUser(msg.SenderID)

	files, cleanup := p.stageAttachments(ctx, msg.Attachments)
	defer cleanup()

	out := domain.OutboundMessage{
		Text:        text,
		Files:       files,
		DisplayName: user.Name,
		AvatarURL:   user.ProfileURL,
	}
	if err := p.forward.Forward(ctx, out); err != nil {
		p.logger.Error("failed to forward message to Discord", "message", msg.Name, "err", err)
		metrics.MessagesDropped.Inc()
	}
}

// stageAttachments downloads each attachment into a per-message temp
// directory. The returned cleanup removes the directory once the message
// has been forwarded; staged files never outlive their message. An
// attachment that fails to download is logged and skipped.
func (p *Poller) stageAttachments(ctx context.Context, refs []domain.AttachmentRef) ([]string, func()) {
	if len(refs) == 0 {
		return nil, func() {}
	}

	dir, err := os.MkdirTemp(p.downloadDir, "msg-*")
	if err != nil {
		p.logger.Error("cannot create staging directory", "err", err)
		return nil, func() {}
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove staging directory", "dir", dir, "err", err)
		}
	}

	var paths []string
	for _, ref := range refs {
		path, err := p.downloadOne(ctx, dir, ref)
		if err != nil {
			p.logger.Error("attachment download failed", "name", ref.ContentName, "err", err)
			continue
		}
		p.logger.Info("saved attachment", "path", path)
		paths = append(paths, path)
	}
	return paths, cleanup
}

func (p *Poller) downloadOne(ctx context.Context, dir string, ref domain.AttachmentRef) (string, error) {
	rc, err := p.chat.DownloadMedia(ctx, ref.ResourceName)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	name := filepath.Base(ref.ContentName)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return "", err
	}
	return path, nil
}
