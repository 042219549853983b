// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrix is the homeserver side of the IRC gateway: a Matrix
// client-server API session built on mautrix.
//
// [Client] logs in with a password, fetches the initial snapshot of the
// account's rooms and then long-polls /sync. Each sync response is flattened
// into a sequence of [Event] values in a stable order: joined rooms sorted by
// room ID (state, timeline, ephemeral), left rooms, then presence.
//
// Room events are decoded into the [RoomEvent] variants the gateway's room
// state machine understands. Anything else becomes [Unknown] and is dropped
// by the gateway after logging.
//
// # Sub-packages
//
//   - matrixfmt converts Matrix HTML to IRC formatting codes.
//   - ircfmt converts IRC formatting codes to Matrix HTML.
package matrix
