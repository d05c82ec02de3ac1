package domain

import "time"

// UserProfile is the Discord-side identity for a Google Chat sender.
type UserProfile struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile,omitempty"`
}

// WebhookRef identifies the Discord webhook the bridge posts through.
type WebhookRef struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Settings is the shared mutable state of the bridge. Both the poller and
// the Discord event handlers read and mutate it; the settings store
// serializes all access. JSON keys match the legacy config.json blob so
// `chatbridge migrate` can import it unchanged.
type Settings struct {
	Watermark      string                 `json:"poll_timestamp"`
	Users          map[string]UserProfile `json:"users"`
	BlockedSenders []string               `json:"blocked_users"`
	SpaceID        string                 `json:"gchat_space"`
	ChannelID      string                 `json:"disc_channel"`
	Webhook        WebhookRef             `json:"webhook"`
	AuthJSON       string                 `json:"auth_json,omitempty"`
}

// Clone returns a deep copy so callers never share the maps and slices
// behind the store's lock.
func (s Settings) Clone() Settings {
	out := s
	out.Users = make(map[string]UserProfile, len(s.Users))
	for id, u := range s.Users {
		out.Users[id] = u
	}
	out.BlockedSenders = append([]string(nil), s.BlockedSenders...)
	return out
}

// IsBlocked reports whether the sender is on the block list.
func (s Settings) IsBlocked(senderID string) bool {
	for _, id := range s.BlockedSenders {
		if id == senderID {
			return true
		}
	}
	return false
}

// ResolveUser maps a sender ID to its Discord display identity. Unknown
// senders fall back to the raw ID with no avatar.
func (s Settings) ResolveUser(senderID string) UserProfile {
	if u, ok := s.Users[senderID]; ok {
		return u
	}
	return UserProfile{Name: senderID}
}

// LaterTimestamp returns the later of two RFC3339 timestamps. Unparseable
// values compare lexically, which matches RFC3339 ordering for a fixed
// layout.
func LaterTimestamp(a, b string) string {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		if tb.After(ta) {
			return b
		}
		return a
	}
	if b > a {
		return b
	}
	return a
}
