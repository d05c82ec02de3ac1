package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatbridge/internal/domain"
	"chatbridge/internal/format"
	"chatbridge/internal/metrics"
	"chatbridge/internal/settings"

	"github.com/bwmarrin/discordgo"
)

// Discord owns the Discord side of the bridge: the bot session, inbound
// message events, and the admin slash commands that manage the user
// directory and the space/channel binding.
type Discord struct {
	session *discordgo.Session
	store   *settings.Store
	chat    domain.ChatAPI
	sender  *ChatSender
	logger  *slog.Logger
	http    *http.Client

	ctx       context.Context
	ready     chan struct{}
	readyOnce sync.Once
}

// DiscordConfig configures the Discord side.
type DiscordConfig struct {
	Token  string
	Store  *settings.Store
	Chat   domain.ChatAPI
	Sender *ChatSender
	Logger *slog.Logger
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return &Discord{
		session: session,
		store:   cfg.Store,
		chat:    cfg.Chat,
		sender:  cfg.Sender,
		logger:  cfg.Logger,
		http:    &http.Client{Timeout: 30 * time.Second},
		ready:   make(chan struct{}),
	}, nil
}

// Session exposes the underlying session for the webhook forwarder and the
// health endpoint.
func (d *Discord) Session() *discordgo.Session { return d.session }

// Ready is closed once the session is open and slash commands are
// registered; the poller waits on it before its first fetch.
func (d *Discord) Ready() <-chan struct{} { return d.ready }

// Heartbeat ACKs arrive roughly every 41s; an ACK older than this means
// the gateway connection is gone even if the session has not noticed yet.
const staleHeartbeatAge = 2 * time.Minute

// Connected reports whether the gateway session is live: startup has
// completed and heartbeat ACKs are still arriving.
func (d *Discord) Connected() bool {
	select {
	case <-d.ready:
	default:
		return false
	}
	return d.session.DataReady && time.Since(d.session.LastHeartbeatAck) < staleHeartbeatAge
}

// GuildCount returns the number of guilds in session state.
func (d *Discord) GuildCount() int {
	if d.session.State == nil {
		return 0
	}
	return len(d.session.State.Guilds)
}

// Latency returns the gateway heartbeat latency.
func (d *Discord) Latency() time.Duration {
	return d.session.HeartbeatLatency()
}

// Start connects to Discord and blocks until the context is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	d.ctx = ctx

	d.session.AddHandler(d.handleMessage)
	d.session.AddHandler(d.handleInteraction)

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", d.session.State.User.Username)

	d.registerSlashCommands()
	d.readyOnce.Do(func() { close(d.ready) })

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return d.session.Close()
}

// handleMessage relays one Discord message into the Google Chat space.
// Self-authored and webhook-authored messages are ignored to prevent relay
// loops, as is anything outside the bound channel.
func (d *Discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.WebhookID != "" {
		return
	}

	st := d.store.Snapshot()
	if st.ChannelID == "" || m.ChannelID != st.ChannelID {
		return
	}

	d.logger.Info("discord message received",
		"author", m.Author.Username,
		"attachments", len(m.Attachments),
		"content_len", len(m.Content),
	)

	text, media := d.buildChatMessage(d.ctx, st, m.Content, m.Attachments)
	composed := fmt.Sprintf("%s: %s", displayName(m), text)

	if _, err := d.sender.SendWithRetry(d.ctx, composed, media); err != nil {
		d.logger.Error("failed to relay message to Google Chat", "err", err)
		metrics.MessagesDropped.Inc()
		return
	}
	metrics.MessagesToChat.Inc()
}

// buildChatMessage converts the text to the Google Chat dialect and
// partitions attachments by MIME type: images are uploaded as native Chat
// media, everything else is appended to the text as a numbered list of
// direct links. Only images get native treatment; Chat media upload is
// specialized for inline image display.
func (d *Discord) buildChatMessage(ctx context.Context, st domain.Settings, content string, attachments []*discordgo.MessageAttachment) (string, []domain.UploadedMedia) {
	text := format.ToGoogleChat(content)

	var media []domain.UploadedMedia
	var links []string
	for _, att := range attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			up, err := d.uploadImage(ctx, st.SpaceID, att)
			if err != nil {
				d.logger.Error("image upload failed, falling back to link",
					"filename", att.Filename, "err", err)
				links = append(links, att.URL)
				continue
			}
			media = append(media, up)
			continue
		}
		links = append(links, att.URL)
	}

	if len(links) > 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s\nContains %d non-image attachment(s):", text, len(links))
		for i, url := range links {
			fmt.Fprintf(&sb, " <%s|%d>", url, i+1)
		}
		text = sb.String()
	}
	return text, media
}

// uploadImage streams a Discord attachment straight into Chat media storage.
func (d *Discord) uploadImage(ctx context.Context, space string, att *discordgo.MessageAttachment) (domain.UploadedMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return domain.UploadedMedia{}, err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return domain.UploadedMedia{}, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.UploadedMedia{}, fmt.Errorf("fetch attachment: HTTP %d", resp.StatusCode)
	}

	return d.chat.UploadMedia(ctx, space, att.Filename, att.ContentType, resp.Body)
}

// displayName picks the name a Discord user shows as in the channel.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
