// Copyright 2024-2026 Aiku AI

// Package ircfmt converts IRC formatted text to Matrix HTML.
package ircfmt

import (
	"html"
	"strings"

	"maunium.net/go/mautrix/event"
)

// ParsedMessage holds the result of converting IRC text to Matrix format.
type ParsedMessage struct {
	Body          string
	Format        event.Format
	FormattedBody string
}

const (
	codeBold          = '\x02'
	codeColor         = '\x03'
	codeHexColor      = '\x04'
	codeReset         = '\x0f'
	codeMonospace     = '\x11'
	codeReverse       = '\x16'
	codeItalic        = '\x1d'
	codeStrikethrough = '\x1e'
	codeUnderline     = '\x1f'
)

const formattingCodes = "\x02\x03\x04\x0f\x11\x16\x1d\x1e\x1f"

type style uint8

const (
	styleBold style = 1 << iota
	styleItalic
	styleUnderline
	styleStrikethrough
	styleMonospace
)

// tags lists the HTML tag of each style in nesting order.
var tags = []struct {
	style style
	tag   string
}{
	{styleBold, "strong"},
	{styleItalic, "em"},
	{styleUnderline, "u"},
	{styleStrikethrough, "del"},
	{styleMonospace, "code"},
}

// Parse converts an IRC message to Matrix event content. Text without any
// formatting codes is returned as a plain body.
func Parse(text string) *ParsedMessage {
	if !strings.ContainsAny(text, formattingCodes) {
		return &ParsedMessage{Body: text}
	}

	var body, formatted strings.Builder
	var wanted, open style
	var run strings.Builder

	flush := func() {
		if run.Len() == 0 {
			return
		}
		if wanted != open {
			closeTags(&formatted, open)
			openTags(&formatted, wanted)
			open = wanted
		}
		formatted.WriteString(html.EscapeString(run.String()))
		body.WriteString(run.String())
		run.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case codeBold:
			flush()
			wanted ^= styleBold
		case codeItalic:
			flush()
			wanted ^= styleItalic
		case codeUnderline:
			flush()
			wanted ^= styleUnderline
		case codeStrikethrough:
			flush()
			wanted ^= styleStrikethrough
		case codeMonospace:
			flush()
			wanted ^= styleMonospace
		case codeReset:
			flush()
			wanted = 0
		case codeColor:
			i = skipColor(text, i, isDigit, 2)
		case codeHexColor:
			i = skipColor(text, i, isHexDigit, 6)
		case codeReverse:
		default:
			run.WriteByte(c)
		}
	}
	flush()
	closeTags(&formatted, open)

	if formatted.String() == html.EscapeString(body.String()) {
		return &ParsedMessage{Body: body.String()}
	}
	return &ParsedMessage{
		Body:          body.String(),
		Format:        event.FormatHTML,
		FormattedBody: formatted.String(),
	}
}

// Strip removes all formatting codes from text.
func Strip(text string) string {
	return Parse(text).Body
}

func openTags(sb *strings.Builder, s style) {
	for _, t := range tags {
		if s&t.style != 0 {
			sb.WriteString("<" + t.tag + ">")
		}
	}
}

func closeTags(sb *strings.Builder, s style) {
	for i := len(tags) - 1; i >= 0; i-- {
		if s&tags[i].style != 0 {
			sb.WriteString("</" + tags[i].tag + ">")
		}
	}
}

// skipColor returns the index of the last byte of a color sequence starting
// at text[i]: the code, a foreground of up to width digits and an optional
// comma-separated background.
func skipColor(text string, i int, valid func(byte) bool, width int) int {
	j := i + 1
	n := 0
	for j < len(text) && n < width && valid(text[j]) {
		j++
		n++
	}
	if n > 0 && j+1 < len(text) && text[j] == ',' && valid(text[j+1]) {
		j++
		n = 0
		for j < len(text) && n < width && valid(text[j]) {
			j++
			n++
		}
	}
	return j - 1
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
