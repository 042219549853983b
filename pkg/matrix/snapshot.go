// Copyright 2024-2026 Aiku AI

package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix/event"
)

// InitialSnapshot fetches the full state of every room the account is in,
// together with the most recent timeline of each. Later PollOnce calls
// continue from where the snapshot ended.
func (c *Client) InitialSnapshot(ctx context.Context) ([]Event, error) {
	if !c.isLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	resp, err := c.client.SyncRequest(ctx, 0, "", "", true, event.PresenceOnline)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch initial snapshot: %w", err)
	}
	c.setNextBatch(resp.NextBatch)

	events := flattenSync(resp, c.log)
	c.log.Info().
		Int("rooms", len(resp.Rooms.Join)).
		Int("events", len(events)).
		Msg("Fetched initial snapshot")
	return events, nil
}

// PollOnce long-polls the homeserver for events newer than the last batch.
// It returns an empty slice when the poll timed out without news.
func (c *Client) PollOnce(ctx context.Context) ([]Event, error) {
	if !c.isLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	since := c.getNextBatch()
	timeout := int(c.pollTimeout.Milliseconds())
	resp, err := c.client.SyncRequest(ctx, timeout, since, "", false, event.PresenceOnline)
	if err != nil {
		return nil, fmt.Errorf("failed to poll: %w", err)
	}
	c.setNextBatch(resp.NextBatch)

	events := flattenSync(resp, c.log)
	c.log.Trace().Str("since", since).Int("events", len(events)).Msg("Poll complete")
	return events, nil
}

func (c *Client) getNextBatch() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextBatch
}

func (c *Client) setNextBatch(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextBatch = token
}
