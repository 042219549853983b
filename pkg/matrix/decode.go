// Copyright 2024-2026 Aiku AI

package matrix

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// aliasesContent is the content of the legacy m.room.aliases state event.
type aliasesContent struct {
	Aliases []string `json:"aliases"`
}

// avatarContent is the content of m.room.avatar.
type avatarContent struct {
	URL string `json:"url"`
}

// flattenSync turns a sync response into the ordered list of events the
// bridge consumes. Joined rooms come first, sorted by room ID; for each room
// its state, then its timeline, then its ephemeral events. Left rooms and
// presence follow.
func flattenSync(resp *mautrix.RespSync, log zerolog.Logger) []Event {
	var events []Event

	joined := make([]id.RoomID, 0, len(resp.Rooms.Join))
	for roomID := range resp.Rooms.Join {
		joined = append(joined, roomID)
	}
	slices.Sort(joined)
	for _, roomID := range joined {
		room := resp.Rooms.Join[roomID]
		if room == nil {
			continue
		}
		for _, evt := range room.State.Events {
			events = append(events, decodeRoomEvent(roomID, evt, log))
		}
		for _, evt := range room.Timeline.Events {
			events = append(events, decodeRoomEvent(roomID, evt, log))
		}
		for _, evt := range room.Ephemeral.Events {
			events = append(events, decodeEphemeral(roomID, evt, log))
		}
	}

	left := make([]id.RoomID, 0, len(resp.Rooms.Leave))
	for roomID := range resp.Rooms.Leave {
		left = append(left, roomID)
	}
	slices.Sort(left)
	for _, roomID := range left {
		room := resp.Rooms.Leave[roomID]
		if room == nil {
			continue
		}
		for _, evt := range room.Timeline.Events {
			events = append(events, decodeRoomEvent(roomID, evt, log))
		}
	}

	for _, evt := range resp.Presence.Events {
		events = append(events, decodePresence(evt, log))
	}
	return events
}

// decodeRoomEvent converts a state or timeline event. Events whose content
// cannot be decoded are passed on as Unknown.
func decodeRoomEvent(roomID id.RoomID, evt *event.Event, log zerolog.Logger) Event {
	out := Event{ID: evt.ID}
	roomEvent, err := roomEventPayload(evt)
	if err != nil {
		log.Warn().Err(err).
			Str("event_id", string(evt.ID)).
			Str("event_type", evt.Type.Type).
			Msg("Failed to decode room event content")
		roomEvent = Unknown{Type: evt.Type.Type, Raw: evt.Content.VeryRaw}
	}
	out.Payload = RoomScoped{RoomID: roomID, Event: roomEvent}
	return out
}

func roomEventPayload(evt *event.Event) (RoomEvent, error) {
	raw := evt.Content.VeryRaw
	switch evt.Type.Type {
	case event.StateCanonicalAlias.Type:
		var content event.CanonicalAliasEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return CanonicalAliasSet{Alias: string(content.Alias)}, nil
	case "m.room.aliases":
		var content aliasesContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return AliasesAnnounced{Aliases: content.Aliases}, nil
	case event.StateJoinRules.Type:
		var content event.JoinRulesEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return JoinRulesChanged{Rule: string(content.JoinRule)}, nil
	case event.StateCreate.Type:
		return Created{Creator: evt.Sender}, nil
	case event.StatePowerLevels.Type:
		return PowerLevelsChanged{}, nil
	case event.StateHistoryVisibility.Type:
		var content event.HistoryVisibilityEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return HistoryVisibilityChanged{Visibility: string(content.HistoryVisibility)}, nil
	case event.StateRoomName.Type:
		var content event.RoomNameEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return NameChanged{Sender: evt.Sender, Name: content.Name}, nil
	case event.StateRoomAvatar.Type:
		var content avatarContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return AvatarChanged{Sender: evt.Sender, URL: content.URL}, nil
	case event.StateMember.Type:
		var content event.MemberEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		user := evt.Sender
		if evt.StateKey != nil && *evt.StateKey != "" {
			user = id.UserID(*evt.StateKey)
		}
		return MembershipChanged{User: user, Membership: content.Membership}, nil
	case event.EventMessage.Type:
		var content event.MessageEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return MessageSent{Sender: evt.Sender, Text: messageText(&content)}, nil
	case event.StateTopic.Type:
		var content event.TopicEventContent
		if err := decodeContent(raw, &content); err != nil {
			return nil, err
		}
		return TopicChanged{Sender: evt.Sender, Topic: content.Topic}, nil
	default:
		return Unknown{Type: evt.Type.Type, Raw: raw}, nil
	}
}

func decodeEphemeral(roomID id.RoomID, evt *event.Event, log zerolog.Logger) Event {
	if evt.Type.Type != event.EphemeralEventTyping.Type {
		return Event{Payload: Other{Type: evt.Type.Type}}
	}
	var content event.TypingEventContent
	if err := decodeContent(evt.Content.VeryRaw, &content); err != nil {
		log.Warn().Err(err).Str("room_id", string(roomID)).Msg("Failed to decode typing notification")
		return Event{Payload: Other{Type: evt.Type.Type}}
	}
	return Event{Payload: Typing{RoomID: roomID, UserIDs: content.UserIDs}}
}

func decodePresence(evt *event.Event, log zerolog.Logger) Event {
	if evt.Type.Type != event.EphemeralEventPresence.Type {
		return Event{Payload: Other{Type: evt.Type.Type}}
	}
	var content event.PresenceEventContent
	if err := decodeContent(evt.Content.VeryRaw, &content); err != nil {
		log.Warn().Err(err).Str("user_id", string(evt.Sender)).Msg("Failed to decode presence")
		return Event{Payload: Other{Type: evt.Type.Type}}
	}
	return Event{Payload: Presence{UserID: evt.Sender, Presence: content.Presence}}
}

func decodeContent(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty content")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return nil
}
