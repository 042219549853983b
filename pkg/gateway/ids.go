// Copyright 2024-2026 Aiku AI

package gateway

import (
	"strings"
	"unicode"

	"gopkg.in/irc.v4"
	"maunium.net/go/mautrix/id"
)

const (
	fallbackNick = "unknown"
	fallbackHost = "matrix"
)

// Nick returns the IRC nickname of a Matrix user, which is its localpart.
func Nick(userID id.UserID) string {
	nick, _ := splitUserID(userID)
	return nick
}

// SenderPrefix derives the IRC prefix nick!nick@homeserver of a Matrix user.
func SenderPrefix(userID id.UserID) *irc.Prefix {
	nick, host := splitUserID(userID)
	return &irc.Prefix{Name: nick, User: nick, Host: host}
}

func splitUserID(userID id.UserID) (nick, host string) {
	localpart, homeserver, err := userID.Parse()
	if err != nil {
		localpart, homeserver, _ = strings.Cut(strings.TrimPrefix(string(userID), "@"), ":")
	}
	nick = sanitize(localpart)
	if nick == "" {
		nick = fallbackNick
	}
	host = sanitizeHost(homeserver)
	if host == "" {
		host = fallbackHost
	}
	return nick, host
}

// sanitizeHost keeps the server name verbatim, ports and IPv6 literals
// included, and only replaces what cannot appear in a prefix host.
func sanitizeHost(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r <= ' ', r == 0x7f, unicode.IsSpace(r), r == '!', r == '@':
			return '_'
		}
		return r
	}, s)
}

// sanitize replaces the characters that would break an IRC nick.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r <= ' ', r == 0x7f, unicode.IsSpace(r):
			return '_'
		case r == '!', r == '@', r == ',', r == '*', r == '?', r == ':':
			return '_'
		}
		return r
	}, s)
}
