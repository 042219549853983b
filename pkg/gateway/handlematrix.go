// Copyright 2024-2026 Aiku AI

package gateway

import (
	"gopkg.in/irc.v4"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// handleRemoteEvent translates one remote event and writes the resulting
// messages to the client. Events already seen are dropped.
func (b *Bridge) handleRemoteEvent(evt matrix.Event) error {
	if b.dedup.HasSeen(evt.ID) {
		remoteEventsTotal.WithLabelValues("duplicate").Inc()
		b.log.Debug().Str("event_id", string(evt.ID)).Msg("Dropping duplicate event")
		return nil
	}

	var out []*irc.Message
	result := "ignored"
	switch p := evt.Payload.(type) {
	case matrix.RoomScoped:
		out = b.registry.HandleEvent(p.RoomID, p.Event)
		result = "translated"
	case matrix.Typing:
		b.log.Trace().Str("room_id", string(p.RoomID)).Int("typing", len(p.UserIDs)).Msg("Ignoring typing notification")
	case matrix.Presence:
		b.log.Trace().Str("user_id", string(p.UserID)).Str("presence", string(p.Presence)).Msg("Ignoring presence")
	case matrix.Other:
		b.log.Debug().Str("event_type", p.Type).Msg("Ignoring event")
	default:
		b.log.Warn().Type("payload", evt.Payload).Msg("Ignoring unsupported payload")
	}
	b.dedup.Record(evt.ID)
	remoteEventsTotal.WithLabelValues(result).Inc()

	for _, msg := range out {
		if err := b.write(msg); err != nil {
			return err
		}
	}
	return nil
}
