package bridge

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// recordingTransport answers every REST call with 204 and keeps the request
// bodies, so interaction responses can be asserted without a gateway.
type recordingTransport struct {
	mu     sync.Mutex
	bodies []string
}

func (t *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		t.mu.Lock()
		t.bodies = append(t.bodies, string(data))
		t.mu.Unlock()
	}
	return &http.Response{
		StatusCode: http.StatusNoContent,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func (t *recordingTransport) sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.bodies...)
}

func newInteractionTestDiscord(t *testing.T) (*Discord, *recordingTransport) {
	t.Helper()
	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatal(err)
	}
	rt := &recordingTransport{}
	session.Client = &http.Client{Transport: rt}

	d := newTestDiscord(t, &fakeChat{})
	d.session = session
	return d, rt
}

func helloInteraction(member *discordgo.Member, user *discordgo.User) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:   discordgo.InteractionApplicationCommand,
			Data:   discordgo.ApplicationCommandInteractionData{Name: "hello"},
			Member: member,
			User:   user,
		},
	}
}

func TestHandleInteraction_HelloFromDM(t *testing.T) {
	d, rt := newInteractionTestDiscord(t)

	// DM interactions carry User only; Member is nil.
	i := helloInteraction(nil, &discordgo.User{ID: "42"})
	d.handleInteraction(d.session, i)

	sent := rt.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 interaction response, got %d", len(sent))
	}
	if !strings.Contains(sent[0], "<@42>") {
		t.Fatalf("response does not mention the invoker: %s", sent[0])
	}
}

func TestHandleInteraction_HelloFromGuild(t *testing.T) {
	d, rt := newInteractionTestDiscord(t)

	i := helloInteraction(&discordgo.Member{User: &discordgo.User{ID: "7"}}, nil)
	d.handleInteraction(d.session, i)

	sent := rt.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 interaction response, got %d", len(sent))
	}
	if !strings.Contains(sent[0], "<@7>") {
		t.Fatalf("response does not mention the invoker: %s", sent[0])
	}
}

func TestInteractionUser(t *testing.T) {
	if u := interactionUser(helloInteraction(nil, nil)); u != nil {
		t.Fatalf("expected nil user, got %+v", u)
	}
	if u := interactionUser(helloInteraction(nil, &discordgo.User{ID: "1"})); u == nil || u.ID != "1" {
		t.Fatalf("DM user not resolved: %+v", u)
	}
	if u := interactionUser(helloInteraction(&discordgo.Member{User: &discordgo.User{ID: "2"}}, nil)); u == nil || u.ID != "2" {
		t.Fatalf("guild member not resolved: %+v", u)
	}
}
