package format

import "testing"

func TestToDiscord(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"bold", "this is *bold* text", "this is **bold** text"},
		{"strike", "~gone~", "~~gone~~"},
		{"italic untouched", "some _italic_ text", "some _italic_ text"},
		{"labeled link", "see <https://example.com/doc|the doc>", "see [the doc](https://example.com/doc)"},
		{"bare link", "go to <https://example.com>", "go to https://example.com"},
		{"code span preserved", "run `ls *flag*` now", "run `ls *flag*` now"},
		{"code block preserved", "```\n*not bold*\n```", "```\n*not bold*\n```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToDiscord(tc.in); got != tc.want {
				t.Errorf("ToDiscord(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestToGoogleChat(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"bold", "this is **bold** text", "this is *bold* text"},
		{"italic star", "some *italic* text", "some _italic_ text"},
		{"italic underscore untouched", "some _italic_ text", "some _italic_ text"},
		{"strike", "~~gone~~", "~gone~"},
		{"masked link", "see [the doc](https://example.com/doc)", "see <https://example.com/doc|the doc>"},
		{"bold and italic mixed", "**b** and *i*", "*b* and _i_"},
		{"code span preserved", "run `echo **hi**` now", "run `echo **hi**` now"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToGoogleChat(tc.in); got != tc.want {
				t.Errorf("ToGoogleChat(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	// Google Chat text with no platform-only constructs should survive the
	// round trip through the Discord dialect and back.
	inputs := []string{
		"plain text only",
		"*bold* and _italic_ and ~strike~",
		"link: <https://example.com/a|label>",
		"code `stays *the* same`",
	}
	for _, in := range inputs {
		if got := ToGoogleChat(ToDiscord(in)); got != in {
			t.Errorf("round trip changed %q -> %q", in, got)
		}
	}
}

func TestIdempotentOnPlainText(t *testing.T) {
	in := "no markup at all, just words. 1 < 2"
	if got := ToDiscord(in); got != in {
		t.Errorf("ToDiscord mutated plain text: %q", got)
	}
	if got := ToGoogleChat(in); got != in {
		t.Errorf("ToGoogleChat mutated plain text: %q", got)
	}
}
