// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gateway implements an IRC server backed by a Matrix account.
//
// Each IRC client connection is bridged to its own Matrix session. The
// client's PASS and USER become a Matrix password login; joined rooms
// appear as IRC channels named after their canonical alias.
//
// # Core Types
//
// [Server] accepts client connections, runs one [Bridge] per connection and
// serves the admin API (/metrics, /api/sessions).
//
// [Bridge] is the reactor of a session. It owns the [Registry] of rooms and
// the [Deduplicator], reads client commands and receives remote events from
// the [Poller] through a channel. No other goroutine touches bridge state.
//
// [Room] is the per-room state machine. Membership, message and topic
// events are buffered until the room's channel name is known, then replayed
// in arrival order.
//
// # Errors
//
// Problems local to one event or command (unknown event types, messages to
// unknown channels, failed joins or sends) are logged and absorbed. Failures
// that end a session are returned from [Bridge.Run] as [*SessionError],
// [*TransportError] or [*ConfigurationError]; the server logs them and keeps
// serving other clients.
package gateway
