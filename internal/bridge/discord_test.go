package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatbridge/internal/domain"

	"github.com/bwmarrin/discordgo"
)

func newTestDiscord(t *testing.T, chat domain.ChatAPI) *Discord {
	t.Helper()
	return &Discord{
		store:  newTestStore(t),
		chat:   chat,
		logger: testLogger(),
		http:   &http.Client{Timeout: 5 * time.Second},
		ready:  make(chan struct{}),
	}
}

func TestBuildChatMessage_PartitionsAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-bytes"))
	}))
	defer srv.Close()

	chat := &fakeChat{}
	d := newTestDiscord(t, chat)

	attachments := []*discordgo.MessageAttachment{
		{Filename: "photo.png", ContentType: "image/png", URL: srv.URL + "/photo.png"},
		{Filename: "doc.pdf", ContentType: "application/pdf", URL: srv.URL + "/doc.pdf"},
	}

	text, media := d.buildChatMessage(context.Background(), domain.Settings{SpaceID: "spaces/test"}, "look", attachments)

	if len(media) != 1 || media[0].ContentName != "photo.png" {
		t.Fatalf("media = %+v, want one uploaded image", media)
	}
	if len(chat.uploaded) != 1 || chat.uploaded[0] != "photo.png" {
		t.Fatalf("uploaded = %v", chat.uploaded)
	}
	if !strings.Contains(text, "Contains 1 non-image attachment(s):") {
		t.Fatalf("text = %q, missing attachment notice", text)
	}
	if !strings.Contains(text, "<"+srv.URL+"/doc.pdf|1>") {
		t.Fatalf("text = %q, missing numbered link", text)
	}
}

func TestBuildChatMessage_UploadFailureFallsBackToLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	d := newTestDiscord(t, &fakeChat{})

	attachments := []*discordgo.MessageAttachment{
		{Filename: "photo.png", ContentType: "image/png", URL: srv.URL + "/photo.png"},
	}
	text, media := d.buildChatMessage(context.Background(), domain.Settings{SpaceID: "spaces/test"}, "hi", attachments)

	if len(media) != 0 {
		t.Fatalf("media = %+v, want none", media)
	}
	if !strings.Contains(text, srv.URL+"/photo.png") {
		t.Fatalf("text = %q, want fallback link", text)
	}
}

func TestBuildChatMessage_NoAttachments(t *testing.T) {
	d := newTestDiscord(t, &fakeChat{})
	text, media := d.buildChatMessage(context.Background(), domain.Settings{}, "**bold**", nil)
	if text != "*bold*" {
		t.Fatalf("text = %q, want dialect conversion", text)
	}
	if media != nil {
		t.Fatalf("media = %+v, want nil", media)
	}
}

func TestConnected_TracksGatewayState(t *testing.T) {
	d := newTestDiscord(t, &fakeChat{})
	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatal(err)
	}
	d.session = session

	if d.Connected() {
		t.Fatal("connected before startup completed")
	}

	close(d.ready)
	session.DataReady = true
	session.LastHeartbeatAck = time.Now()
	if !d.Connected() {
		t.Fatal("not connected with live heartbeat")
	}

	// A stale ACK means the gateway dropped even though ready fired once.
	session.LastHeartbeatAck = time.Now().Add(-staleHeartbeatAge - time.Minute)
	if d.Connected() {
		t.Fatal("still connected with stale heartbeat")
	}

	session.LastHeartbeatAck = time.Now()
	session.DataReady = false
	if d.Connected() {
		t.Fatal("still connected after session lost readiness")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		name string
		msg  *discordgo.MessageCreate
		want string
	}{
		{
			"nick wins",
			&discordgo.MessageCreate{Message: &discordgo.Message{
				Member: &discordgo.Member{Nick: "Nickname"},
				Author: &discordgo.User{GlobalName: "Global", Username: "user1"},
			}},
			"Nickname",
		},
		{
			"global name next",
			&discordgo.MessageCreate{Message: &discordgo.Message{
				Author: &discordgo.User{GlobalName: "Global", Username: "user1"},
			}},
			"Global",
		},
		{
			"username last",
			&discordgo.MessageCreate{Message: &discordgo.Message{
				Author: &discordgo.User{Username: "user1"},
			}},
			"user1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := displayName(tc.msg); got != tc.want {
				t.Fatalf("displayName = %q, want %q", got, tc.want)
			}
		})
	}
}
