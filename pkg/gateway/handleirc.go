// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"strings"

	"gopkg.in/irc.v4"
	"maunium.net/go/mautrix/id"
)

const (
	rplWelcome           = "001"
	rplYourHost          = "002"
	rplCreated           = "003"
	rplMyInfo            = "004"
	rplISupport          = "005"
	rplNamReply          = "353"
	rplEndOfNames        = "366"
	errNoSuchChannel     = "403"
	errCannotSendToChan  = "404"
	errNoMotd            = "422"
	errNotRegistered     = "451"
	errNeedMoreParams    = "461"
	errAlreadyRegistered = "462"
)

// handleIRC dispatches one client command. Only fatal errors are returned.
func (b *Bridge) handleIRC(ctx context.Context, msg *irc.Message) error {
	command := strings.ToUpper(msg.Command)
	switch command {
	case "PASS":
		b.password = param(msg, 0)
	case "NICK":
		// After login the nick is the Matrix localpart and cannot change.
		if b.loggedIn {
			b.log.Debug().Str("requested", lastParam(msg)).Msg("Ignoring nick change after login")
			return nil
		}
		b.nick = lastParam(msg)
	case "USER":
		b.username = param(msg, 0)
		return b.login(ctx)
	case "PING":
		return b.write(&irc.Message{
			Prefix:  b.serverPrefix(),
			Command: "PONG",
			Params:  []string{b.cfg.ServerName, lastParam(msg)},
		})
	case "JOIN":
		return b.handleJoin(ctx, msg)
	case "PRIVMSG":
		return b.handlePrivmsg(ctx, msg)
	case "NAMES":
		return b.handleNames(msg)
	case "QUIT":
		b.quit = true
	default:
		b.log.Debug().Str("command", command).Msg("Ignoring unsupported command")
	}
	return nil
}

func (b *Bridge) handleJoin(ctx context.Context, msg *irc.Message) error {
	if !b.loggedIn {
		return b.write(b.numeric(errNotRegistered, "You have not registered"))
	}
	if len(msg.Params) == 0 {
		return b.write(b.numeric(errNeedMoreParams, "JOIN", "Not enough parameters"))
	}
	for _, channel := range strings.Split(msg.Params[0], ",") {
		if channel == "" {
			continue
		}
		roomID, err := b.remote.Join(ctx, channel)
		if err != nil {
			b.log.Warn().Err(err).Str("channel", channel).Msg("Failed to join room")
			if err := b.write(b.numeric(errNoSuchChannel, channel, "No such channel")); err != nil {
				return err
			}
			continue
		}
		b.registry.Room(roomID)
	}
	return nil
}

func (b *Bridge) handlePrivmsg(ctx context.Context, msg *irc.Message) error {
	if !b.loggedIn {
		return b.write(b.numeric(errNotRegistered, "You have not registered"))
	}
	if len(msg.Params) < 2 {
		return b.write(b.numeric(errNeedMoreParams, "PRIVMSG", "Not enough parameters"))
	}
	target, text := msg.Params[0], msg.Params[1]
	room := b.registry.ByChannel(target)
	if room == nil {
		b.log.Debug().Str("channel", target).Msg("Dropping message to unknown channel")
		return nil
	}
	evtID, err := b.remote.Send(ctx, room.ID, text)
	if err != nil {
		b.log.Warn().Err(err).Str("channel", target).Msg("Failed to send message")
		return b.write(b.numeric(errCannotSendToChan, target, "Cannot send to channel"))
	}
	b.dedup.Record(evtID)
	return nil
}

func (b *Bridge) handleNames(msg *irc.Message) error {
	if len(msg.Params) == 0 {
		return b.write(b.numeric(rplEndOfNames, "*", "End of /NAMES list"))
	}
	for _, channel := range strings.Split(msg.Params[0], ",") {
		if room := b.registry.ByChannel(channel); room != nil {
			if err := b.write(b.numeric(rplNamReply, channelSymbol(room), channel, memberNicks(room.Members()))); err != nil {
				return err
			}
		}
		if err := b.write(b.numeric(rplEndOfNames, channel, "End of /NAMES list")); err != nil {
			return err
		}
	}
	return nil
}

// channelSymbol returns the RPL_NAMREPLY channel type: "=" for public rooms,
// "*" for everything else.
func channelSymbol(room *Room) string {
	if room.JoinRule() == "public" {
		return "="
	}
	return "*"
}

func memberNicks(members []id.UserID) string {
	nicks := make([]string, len(members))
	for i, m := range members {
		nicks[i] = Nick(m)
	}
	return strings.Join(nicks, " ")
}

func (b *Bridge) serverPrefix() *irc.Prefix {
	return &irc.Prefix{Name: b.cfg.ServerName}
}

// numeric builds a server reply addressed to the client's nick.
func (b *Bridge) numeric(code string, params ...string) *irc.Message {
	target := b.nick
	if target == "" {
		target = "*"
	}
	return &irc.Message{
		Prefix:  b.serverPrefix(),
		Command: code,
		Params:  append([]string{target}, params...),
	}
}

func param(msg *irc.Message, i int) string {
	if i < len(msg.Params) {
		return msg.Params[i]
	}
	return ""
}

func lastParam(msg *irc.Message) string {
	if len(msg.Params) == 0 {
		return ""
	}
	return msg.Params[len(msg.Params)-1]
}
