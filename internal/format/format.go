// Package format converts message text between the Google Chat and Discord
// markup dialects. Both directions are pure functions over the text; code
// spans are lifted out first so their contents survive untouched.
package format

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	codeSpanRe  = regexp.MustCompile("`[^`\n]+`")

	// Google Chat constructs.
	gchatBoldRe   = regexp.MustCompile(`\*([^*\n]+)\*`)
	gchatStrikeRe = regexp.MustCompile(`~([^~\n]+)~`)
	gchatLinkRe   = regexp.MustCompile(`<(https?://[^|>\s]+)\|([^>]+)>`)
	gchatURLRe    = regexp.MustCompile(`<(https?://[^|>\s]+)>`)

	// Discord constructs.
	discordBoldRe   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	discordStrikeRe = regexp.MustCompile(`~~([^~\n]+)~~`)
	discordLinkRe   = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	discordItalicRe = regexp.MustCompile(`\*([^*\n]+)\*`)
)

// ToDiscord converts Google Chat markup to Discord markdown.
func ToDiscord(text string) string {
	text, restore := protectCode(text)

	text = gchatLinkRe.ReplaceAllString(text, "[$2]($1)")
	text = gchatURLRe.ReplaceAllString(text, "$1")
	text = gchatBoldRe.ReplaceAllString(text, "**$1**")
	text = gchatStrikeRe.ReplaceAllString(text, "~~$1~~")
	// _italic_ is italic in both dialects.

	return restore(text)
}

// ToGoogleChat converts Discord markdown to Google Chat markup.
func ToGoogleChat(text string) string {
	text, restore := protectCode(text)

	text = discordLinkRe.ReplaceAllString(text, "<$2|$1>")
	text = discordStrikeRe.ReplaceAllString(text, "~$1~")

	// Bold first, via placeholders, so the leftover single stars can be
	// treated as italics without eating the bold markers.
	var bolds []string
	text = discordBoldRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := discordBoldRe.FindStringSubmatch(m)[1]
		bolds = append(bolds, inner)
		return "\x00B" + strconv.Itoa(len(bolds)-1) + "\x00"
	})
	text = discordItalicRe.ReplaceAllString(text, "_${1}_")
	for i, inner := range bolds {
		text = strings.Replace(text, "\x00B"+strconv.Itoa(i)+"\x00", "*"+inner+"*", 1)
	}

	return restore(text)
}

// protectCode replaces code blocks and inline code spans with placeholders
// and returns a function that puts them back.
func protectCode(text string) (string, func(string) string) {
	if !strings.Contains(text, "`") {
		return text, func(s string) string { return s }
	}

	var saved []string
	stash := func(m string) string {
		saved = append(saved, m)
		return "\x00C" + strconv.Itoa(len(saved)-1) + "\x00"
	}
	text = codeBlockRe.ReplaceAllStringFunc(text, stash)
	text = codeSpanRe.ReplaceAllStringFunc(text, stash)

	return text, func(s string) string {
		for i, code := range saved {
			s = strings.Replace(s, "\x00C"+strconv.Itoa(i)+"\x00", code, 1)
		}
		return s
	}
}
