// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/irc.v4"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// RemoteService is the Matrix account a session is bridged to.
type RemoteService interface {
	Login(ctx context.Context, username, password string) error
	InitialSnapshot(ctx context.Context) ([]matrix.Event, error)
	PollOnce(ctx context.Context) ([]matrix.Event, error)
	Join(ctx context.Context, channel string) (id.RoomID, error)
	Send(ctx context.Context, roomID id.RoomID, text string) (id.EventID, error)
	Logout(ctx context.Context) error
	UserID() id.UserID
}

var _ RemoteService = (*matrix.Client)(nil)

// notifyBuffer is the capacity of the poller-to-reactor channel.
const notifyBuffer = 64

// logoutTimeout bounds the logout performed when a session ends.
const logoutTimeout = 10 * time.Second

// Bridge is the reactor of one IRC client session. Run owns every piece of
// bridge state; the only other goroutines are the connection reader and the
// poller, which communicate with it through channels.
type Bridge struct {
	cfg    *Config
	conn   ClientConn
	remote RemoteService
	log    zerolog.Logger

	registry *Registry
	dedup    *Deduplicator
	notify   chan notification
	poller   *Poller

	newBackOff  func() backoff.BackOff
	startPoller func()

	password string
	nick     string
	username string
	loggedIn bool
	quit     bool
	// backlog holds snapshot events not yet handled.
	backlog []matrix.Event
}

// NewBridge creates the reactor for one client connection.
func NewBridge(cfg *Config, conn ClientConn, remote RemoteService, log zerolog.Logger) *Bridge {
	log = log.With().Str("component", "bridge").Logger()
	notify := make(chan notification, notifyBuffer)
	return &Bridge{
		cfg:        cfg,
		conn:       conn,
		remote:     remote,
		log:        log,
		registry:   NewRegistry(log),
		dedup:      NewDeduplicator(cfg.DedupCapacity),
		notify:     notify,
		poller:     NewPoller(remote, notify, cfg.PollRetries, log),
		newBackOff: defaultBackOff,
	}
}

// Run serves the session until the client quits or disconnects, ctx is
// cancelled or a fatal error occurs. The poller is stopped and the
// connection closed before Run returns. Fatal errors are returned as
// *SessionError, *TransportError or *ConfigurationError.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	incoming := make(chan *irc.Message)
	readErr := make(chan error, 1)
	group.Go(func() error {
		b.readLoop(gctx, incoming, readErr)
		return nil
	})
	b.startPoller = func() {
		group.Go(func() error {
			return b.poller.Run(gctx)
		})
	}

	err := b.loop(gctx, incoming, readErr)
	if err != nil {
		b.log.Error().Err(err).Msg("Session failed")
		_ = b.conn.WriteMessage(&irc.Message{Command: "ERROR", Params: []string{"Closing link: " + err.Error()}})
	} else if b.quit {
		_ = b.conn.WriteMessage(&irc.Message{Command: "ERROR", Params: []string{"Closing link: quit"}})
	}

	cancel()
	_ = b.conn.Close()
	_ = group.Wait()

	if b.loggedIn && b.cfg.LogoutOnQuit {
		logoutCtx, cancelLogout := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		if logoutErr := b.remote.Logout(logoutCtx); logoutErr != nil {
			b.log.Warn().Err(logoutErr).Msg("Failed to log out of remote session")
		}
		cancelLogout()
	}
	return err
}

func (b *Bridge) readLoop(ctx context.Context, incoming chan<- *irc.Message, readErr chan<- error) {
	for {
		msg, err := b.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case incoming <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) loop(ctx context.Context, incoming <-chan *irc.Message, readErr <-chan error) error {
	for {
		for len(b.backlog) > 0 {
			evt := b.backlog[0]
			b.backlog = b.backlog[1:]
			if err := b.handleRemoteEvent(evt); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case msg := <-incoming:
			if err := b.handleIRC(ctx, msg); err != nil {
				return err
			}
			if b.quit {
				b.log.Info().Msg("Client quit")
				return nil
			}
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				b.log.Info().Msg("Client disconnected")
				return nil
			}
			return &TransportError{Op: "read", Err: err}
		case n := <-b.notify:
			if err := b.handleNotification(n); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handleNotification(n notification) error {
	switch n := n.(type) {
	case remoteEvent:
		return b.handleRemoteEvent(n.evt)
	case batchComplete:
		b.poller.Next()
	case pollFailed:
		return n.err
	}
	return nil
}

// write sends msg to the client.
func (b *Bridge) write(msg *irc.Message) error {
	if err := b.conn.WriteMessage(msg); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	outboundMessagesTotal.WithLabelValues(msg.Command).Inc()
	return nil
}
