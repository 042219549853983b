// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixfmt converts Matrix HTML to IRC formatted text.
package matrixfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// IRC formatting control codes.
const (
	Bold          = "\x02"
	Italic        = "\x1d"
	Underline     = "\x1f"
	Strikethrough = "\x1e"
	Monospace     = "\x11"
)

var (
	replyRe      = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
	strongRe     = regexp.MustCompile(`(?s)<(?:strong|b)>(.*?)</(?:strong|b)>`)
	emRe         = regexp.MustCompile(`(?s)<(?:em|i)>(.*?)</(?:em|i)>`)
	underlineRe  = regexp.MustCompile(`(?s)<u>(.*?)</u>`)
	delRe        = regexp.MustCompile(`(?s)<(?:del|s|strike)>(.*?)</(?:del|s|strike)>`)
	codeRe       = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	preRe        = regexp.MustCompile(`(?s)<pre><code[^>]*>(.*?)</code></pre>`)
	linkRe       = regexp.MustCompile(`(?s)<a href="([^"]+)"[^>]*>(.*?)</a>`)
	brRe         = regexp.MustCompile(`<br\s*/?>`)
	blockquoteRe = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	headingRe    = regexp.MustCompile(`(?s)<h[1-6]>(.*?)</h[1-6]>`)
	ulRe         = regexp.MustCompile(`(?s)<ul>(.*?)</ul>`)
	olRe         = regexp.MustCompile(`(?s)<ol>(.*?)</ol>`)
	liRe         = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	pRe          = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// matrixToPrefix marks user and room pills, which render as their label only.
const matrixToPrefix = "https://matrix.to/#/"

// Parse converts Matrix message content to IRC text.
func Parse(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}

	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return content.Body
	}

	text := replyRe.ReplaceAllString(content.FormattedBody, "")

	// Code blocks keep their content verbatim; inline code is marked monospace.
	text = preRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, Monospace+"${1}"+Monospace)

	text = strongRe.ReplaceAllString(text, Bold+"${1}"+Bold)
	text = emRe.ReplaceAllString(text, Italic+"${1}"+Italic)
	text = underlineRe.ReplaceAllString(text, Underline+"${1}"+Underline)
	text = delRe.ReplaceAllString(text, Strikethrough+"${1}"+Strikethrough)

	text = linkRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		href, label := parts[1], parts[2]
		switch {
		case strings.HasPrefix(href, matrixToPrefix):
			return label
		case label == href, "mailto:"+label == href:
			return label
		default:
			return label + " (" + href + ")"
		}
	})

	text = headingRe.ReplaceAllString(text, Bold+"${1}"+Bold+"\n")

	text = blockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := blockquoteRe.FindStringSubmatch(match)
		inner := brRe.ReplaceAllString(parts[1], "\n")
		inner = pRe.ReplaceAllString(inner, "$1\n")
		lines := strings.Split(strings.TrimSpace(inner), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n") + "\n"
	})

	text = ulRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for _, item := range items {
			result = append(result, "- "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	text = olRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for i, item := range items {
			result = append(result, strconv.Itoa(i+1)+". "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n") + "\n"
	})

	text = pRe.ReplaceAllString(text, "$1\n\n")
	text = brRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
