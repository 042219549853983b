// Copyright 2024-2026 Aiku AI

package gateway

import (
	"github.com/rs/zerolog"
	"gopkg.in/irc.v4"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// Registry owns the rooms of one session, keyed by room ID, with a secondary
// index from channel name to resolved room.
type Registry struct {
	rooms     map[id.RoomID]*Room
	byChannel map[string]*Room
	log       zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms:     make(map[id.RoomID]*Room),
		byChannel: make(map[string]*Room),
		log:       log,
	}
}

// Room returns the room with the given ID, creating it if it was never seen.
func (r *Registry) Room(roomID id.RoomID) *Room {
	room, ok := r.rooms[roomID]
	if !ok {
		room = NewRoom(roomID, r.log)
		r.rooms[roomID] = room
		r.log.Debug().Str("room_id", string(roomID)).Msg("Created room")
	}
	return room
}

// ByChannel returns the resolved room whose channel name is exactly name,
// or nil.
func (r *Registry) ByChannel(name string) *Room {
	return r.byChannel[name]
}

// Len returns the number of known rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

// HandleEvent routes a room event to its room and keeps the channel index
// in sync with the room's name.
func (r *Registry) HandleEvent(roomID id.RoomID, evt matrix.RoomEvent) []*irc.Message {
	room := r.Room(roomID)
	before := room.Name()
	out := room.HandleEvent(evt)
	if after := room.Name(); after != before {
		if before != "" && r.byChannel[before] == room {
			delete(r.byChannel, before)
		}
		r.byChannel[after] = room
		r.log.Debug().
			Str("room_id", string(roomID)).
			Str("old_channel", before).
			Str("channel", after).
			Msg("Indexed room channel")
	}
	return out
}
