// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// DeviceDisplayName is the display name of the devices created by Login.
const DeviceDisplayName = "mautrix-ircd"

// Client is a single Matrix account session used by one IRC client.
type Client struct {
	client      *mautrix.Client
	pollTimeout time.Duration
	log         zerolog.Logger

	mu        sync.Mutex
	nextBatch string
	loggedIn  bool
	userID    id.UserID
}

// NewClient creates a client for the homeserver at homeserverURL. Long polls
// wait up to pollTimeout for new events.
func NewClient(homeserverURL string, pollTimeout time.Duration, log zerolog.Logger) (*Client, error) {
	cli, err := mautrix.NewClient(homeserverURL, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	cli.Log = log.With().Str("component", "mautrix").Logger()
	return &Client{
		client:      cli,
		pollTimeout: pollTimeout,
		log:         log.With().Str("component", "matrix_client").Logger(),
	}, nil
}

// Login authenticates with a password. Rejected credentials are reported
// as ErrCredentialsRejected.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: username,
		},
		Password:                 password,
		InitialDeviceDisplayName: DeviceDisplayName,
		StoreCredentials:         true,
	})
	if err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: %w", ErrCredentialsRejected, err)
		}
		return fmt.Errorf("failed to log in: %w", err)
	}

	c.mu.Lock()
	c.loggedIn = true
	c.userID = resp.UserID
	c.mu.Unlock()

	c.log.Info().
		Str("user_id", string(resp.UserID)).
		Str("device_id", string(resp.DeviceID)).
		Msg("Logged in")
	return nil
}

// UserID returns the Matrix user ID of the logged-in account, or "" before
// Login.
func (c *Client) UserID() id.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Join joins the room named by an IRC channel. Names starting with "!" are
// room IDs, anything else is resolved as a room alias.
func (c *Client) Join(ctx context.Context, channel string) (id.RoomID, error) {
	if !c.isLoggedIn() {
		return "", ErrNotLoggedIn
	}
	roomID := id.RoomID(channel)
	if !strings.HasPrefix(channel, "!") {
		resolved, err := c.client.ResolveAlias(ctx, id.RoomAlias(channel))
		if err != nil {
			return "", fmt.Errorf("failed to resolve alias %s: %w", channel, err)
		}
		roomID = resolved.RoomID
	}
	if _, err := c.client.JoinRoomByID(ctx, roomID); err != nil {
		return "", fmt.Errorf("failed to join %s: %w", roomID, err)
	}
	c.log.Info().Str("channel", channel).Str("room_id", string(roomID)).Msg("Joined room")
	return roomID, nil
}

// Send posts an IRC message text to a room and returns the new event's ID.
func (c *Client) Send(ctx context.Context, roomID id.RoomID, text string) (id.EventID, error) {
	if !c.isLoggedIn() {
		return "", ErrNotLoggedIn
	}
	resp, err := c.client.SendMessageEvent(ctx, roomID, event.EventMessage, messageContent(text))
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", roomID, err)
	}
	c.log.Debug().Str("room_id", string(roomID)).Str("event_id", string(resp.EventID)).Msg("Sent message")
	return resp.EventID, nil
}

// Logout ends the Matrix session. It is a no-op when not logged in.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	wasLoggedIn := c.loggedIn
	c.loggedIn = false
	c.userID = ""
	c.mu.Unlock()
	if !wasLoggedIn {
		return nil
	}
	if _, err := c.client.Logout(ctx); err != nil && !errors.Is(err, mautrix.MUnknownToken) {
		return fmt.Errorf("failed to log out: %w", err)
	}
	c.client.ClearCredentials()
	c.log.Info().Msg("Logged out")
	return nil
}

func (c *Client) isLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}
