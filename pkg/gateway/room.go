// Copyright 2024-2026 Aiku AI

package gateway

import (
	"slices"

	"github.com/rs/zerolog"
	"gopkg.in/irc.v4"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// Room is the state of one Matrix room as seen by the IRC client.
//
// A room is unresolved until its canonical alias is known. While unresolved,
// membership, message and topic events are buffered in arrival order; the
// alias turns the room into an IRC channel and the buffer is replayed once.
// From then on events are translated as they arrive.
type Room struct {
	ID id.RoomID

	name              string
	joinRule          string
	historyVisibility string
	displayName       string
	avatarURL         string
	topic             string
	creator           id.UserID
	members           []id.UserID
	pending           []matrix.RoomEvent

	log zerolog.Logger
}

// NewRoom creates an unresolved room.
func NewRoom(roomID id.RoomID, log zerolog.Logger) *Room {
	return &Room{
		ID:  roomID,
		log: log.With().Str("room_id", string(roomID)).Logger(),
	}
}

// Name returns the IRC channel name of the room, or "" while unresolved.
func (r *Room) Name() string {
	return r.name
}

// Resolved reports whether the channel name is known.
func (r *Room) Resolved() bool {
	return r.name != ""
}

// JoinRule returns the last join rule seen for the room.
func (r *Room) JoinRule() string {
	return r.joinRule
}

// Topic returns the last topic translated for the room.
func (r *Room) Topic() string {
	return r.topic
}

// Members returns the users currently known to be joined, in join order.
func (r *Room) Members() []id.UserID {
	return slices.Clone(r.members)
}

// Pending returns the number of buffered events.
func (r *Room) Pending() int {
	return len(r.pending)
}

// HandleEvent applies a room event and returns the IRC messages it produces,
// in the order they must be sent.
func (r *Room) HandleEvent(evt matrix.RoomEvent) []*irc.Message {
	switch e := evt.(type) {
	case matrix.CanonicalAliasSet:
		if e.Alias == "" {
			r.log.Debug().Msg("Ignoring empty canonical alias")
			return nil
		}
		return r.resolve(e.Alias)
	case matrix.AliasesAnnounced:
		if r.Resolved() || len(e.Aliases) == 0 || e.Aliases[0] == "" {
			return nil
		}
		return r.resolve(e.Aliases[0])
	case matrix.JoinRulesChanged:
		r.joinRule = e.Rule
	case matrix.Created:
		r.creator = e.Creator
	case matrix.PowerLevelsChanged:
	case matrix.HistoryVisibilityChanged:
		r.historyVisibility = e.Visibility
	case matrix.NameChanged:
		r.displayName = e.Name
	case matrix.AvatarChanged:
		r.avatarURL = e.URL
	case matrix.MembershipChanged:
		if e.Membership != event.MembershipJoin && e.Membership != event.MembershipLeave {
			return nil
		}
		return r.translateOrBuffer(evt)
	case matrix.MessageSent, matrix.TopicChanged:
		return r.translateOrBuffer(evt)
	case matrix.Unknown:
		r.log.Debug().Str("event_type", e.Type).Msg("Dropping unknown room event")
	default:
		r.log.Warn().Type("event", evt).Msg("Dropping unsupported room event")
	}
	return nil
}

func (r *Room) resolve(name string) []*irc.Message {
	wasResolved := r.Resolved()
	r.name = name
	if wasResolved {
		return nil
	}

	pending := r.pending
	r.pending = nil
	r.log.Debug().Str("channel", name).Int("pending", len(pending)).Msg("Room resolved")

	var out []*irc.Message
	for _, evt := range pending {
		out = append(out, r.translate(evt)...)
	}
	return out
}

func (r *Room) translateOrBuffer(evt matrix.RoomEvent) []*irc.Message {
	if !r.Resolved() {
		r.pending = append(r.pending, evt)
		r.log.Debug().Int("pending", len(r.pending)).Msg("Buffered event for unresolved room")
		return nil
	}
	return r.translate(evt)
}

func (r *Room) translate(evt matrix.RoomEvent) []*irc.Message {
	switch e := evt.(type) {
	case matrix.MembershipChanged:
		if e.Membership == event.MembershipJoin {
			if !slices.Contains(r.members, e.User) {
				r.members = append(r.members, e.User)
			}
			return []*irc.Message{channelMessage(e.User, "JOIN", r.name)}
		}
		r.members = slices.DeleteFunc(r.members, func(u id.UserID) bool { return u == e.User })
		return []*irc.Message{channelMessage(e.User, "PART", r.name)}
	case matrix.MessageSent:
		return []*irc.Message{channelMessage(e.Sender, "PRIVMSG", r.name, e.Text)}
	case matrix.TopicChanged:
		r.topic = e.Topic
		return []*irc.Message{channelMessage(e.Sender, "TOPIC", r.name, e.Topic)}
	}
	return nil
}

// channelMessage builds a message from a Matrix user addressed to a channel.
func channelMessage(sender id.UserID, command, channel string, body ...string) *irc.Message {
	return &irc.Message{
		Prefix:  SenderPrefix(sender),
		Command: command,
		Params:  append([]string{channel}, body...),
	}
}
