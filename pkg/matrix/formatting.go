// Copyright 2024-2026 Aiku AI

package matrix

import (
	"strings"

	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-ircd/pkg/matrix/ircfmt"
	"github.com/aiku/mautrix-ircd/pkg/matrix/matrixfmt"
)

const (
	ctcpDelim        = "\x01"
	ctcpActionPrefix = ctcpDelim + "ACTION "
)

// messageText renders a Matrix message as the text of an IRC PRIVMSG.
// Emotes become CTCP ACTIONs.
func messageText(content *event.MessageEventContent) string {
	text := matrixfmt.Parse(content)
	if content.MsgType == event.MsgEmote {
		return ctcpActionPrefix + text + ctcpDelim
	}
	return text
}

// messageContent builds Matrix message content from the text of an IRC
// PRIVMSG.
func messageContent(text string) *event.MessageEventContent {
	msgType := event.MsgText
	if strings.HasPrefix(text, ctcpActionPrefix) {
		msgType = event.MsgEmote
		text = strings.TrimSuffix(strings.TrimPrefix(text, ctcpActionPrefix), ctcpDelim)
	}
	parsed := ircfmt.Parse(text)
	return &event.MessageEventContent{
		MsgType:       msgType,
		Body:          parsed.Body,
		Format:        parsed.Format,
		FormattedBody: parsed.FormattedBody,
	}
}
