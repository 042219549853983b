// Copyright 2024-2026 Aiku AI

package matrix

import (
	"encoding/json"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Event is a single notification received from the homeserver. ID is empty
// for ephemeral notifications (typing, presence), which are never
// deduplicated.
type Event struct {
	ID      id.EventID
	Payload Payload
}

// Payload is the tagged union of event payloads. The concrete types are
// RoomScoped, Presence, Typing and Other.
type Payload interface {
	isPayload()
}

// RoomScoped is an event addressed to a single room.
type RoomScoped struct {
	RoomID id.RoomID
	Event  RoomEvent
}

// Presence reports a presence change of a single user.
type Presence struct {
	UserID   id.UserID
	Presence event.Presence
}

// Typing lists the users currently typing in a room.
type Typing struct {
	RoomID  id.RoomID
	UserIDs []id.UserID
}

// Other is any notification the bridge has no payload type for.
type Other struct {
	Type string
}

func (RoomScoped) isPayload() {}
func (Presence) isPayload()   {}
func (Typing) isPayload()     {}
func (Other) isPayload()      {}

// RoomEvent is the tagged union of room-scoped events.
type RoomEvent interface {
	isRoomEvent()
}

// CanonicalAliasSet sets the room's canonical alias.
type CanonicalAliasSet struct {
	Alias string
}

// AliasesAnnounced lists the aliases a server published for the room
// (the legacy m.room.aliases event).
type AliasesAnnounced struct {
	Aliases []string
}

// JoinRulesChanged carries the room's new join rule (public, invite, ...).
type JoinRulesChanged struct {
	Rule string
}

// Created marks the creation of the room.
type Created struct {
	Creator id.UserID
}

// PowerLevelsChanged marks a change of the room's power levels.
type PowerLevelsChanged struct{}

// HistoryVisibilityChanged carries the room's new history visibility.
type HistoryVisibilityChanged struct {
	Visibility string
}

// NameChanged carries the room's new display name.
type NameChanged struct {
	Sender id.UserID
	Name   string
}

// AvatarChanged carries the room's new avatar URL.
type AvatarChanged struct {
	Sender id.UserID
	URL    string
}

// MembershipChanged reports a membership transition of User.
type MembershipChanged struct {
	User       id.UserID
	Membership event.Membership
}

// MessageSent is a message posted to the room, already rendered as IRC text.
type MessageSent struct {
	Sender id.UserID
	Text   string
}

// TopicChanged carries the room's new topic.
type TopicChanged struct {
	Sender id.UserID
	Topic  string
}

// Unknown is a room event of a type this version does not understand.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (CanonicalAliasSet) isRoomEvent()        {}
func (AliasesAnnounced) isRoomEvent()         {}
func (JoinRulesChanged) isRoomEvent()         {}
func (Created) isRoomEvent()                  {}
func (PowerLevelsChanged) isRoomEvent()       {}
func (HistoryVisibilityChanged) isRoomEvent() {}
func (NameChanged) isRoomEvent()              {}
func (AvatarChanged) isRoomEvent()            {}
func (MembershipChanged) isRoomEvent()        {}
func (MessageSent) isRoomEvent()              {}
func (TopicChanged) isRoomEvent()             {}
func (Unknown) isRoomEvent()                  {}
