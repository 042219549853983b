// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/irc.v4"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// Version is reported in the 002 and 004 replies. It is set by the main
// package from build information.
var Version = "0.1.0"

var startedAt = time.Now()

// login runs the session start sequence triggered by USER: remote login,
// initial snapshot, first poll cycle, then the welcome burst. The snapshot
// events are queued on the backlog and reach the client after the welcome.
func (b *Bridge) login(ctx context.Context) error {
	if b.loggedIn {
		return b.write(b.numeric(errAlreadyRegistered, "You may not reregister"))
	}
	username := strings.TrimSpace(b.username)
	password := strings.TrimSpace(b.password)
	if username == "" {
		return &ConfigurationError{Field: "username"}
	}
	if password == "" {
		return &ConfigurationError{Field: "password"}
	}

	if err := b.loginWithRetry(ctx, username, password); err != nil {
		return &SessionError{Op: "login", Err: err}
	}
	b.loggedIn = true
	b.log.Info().Str("user_id", string(b.remote.UserID())).Msg("Remote session established")

	events, err := b.remote.InitialSnapshot(ctx)
	if err != nil {
		return &SessionError{Op: "initial snapshot", Err: err}
	}
	b.backlog = append(b.backlog, events...)

	b.startPoller()
	b.poller.Next()

	if err := b.welcome(); err != nil {
		return err
	}
	return b.syncNick()
}

func (b *Bridge) loginWithRetry(ctx context.Context, username, password string) error {
	op := func() error {
		err := b.remote.Login(ctx, username, password)
		if errors.Is(err, matrix.ErrCredentialsRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		b.log.Warn().Err(err).Dur("retry_in", wait).Msg("Login failed, retrying")
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b.newBackOff(), uint64(max(b.cfg.LoginRetries, 0))), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

// welcome sends the registration burst: 001 through 005 and 422.
func (b *Bridge) welcome() error {
	userID := b.remote.UserID()
	nick, homeserver := splitUserID(userID)
	if b.nick == "" {
		b.nick = nick
	}
	server := b.cfg.ServerName
	text := b.cfg.FormatWelcome(WelcomeParams{
		Nick:       nick,
		UserID:     userID,
		Homeserver: homeserver,
		ServerName: server,
	})

	burst := []*irc.Message{
		b.numeric(rplWelcome, text),
		b.numeric(rplYourHost, "Your host is "+server+", running version "+Version),
		b.numeric(rplCreated, "This server was created "+startedAt.UTC().Format(time.RFC1123)),
		b.numeric(rplMyInfo, server, Version, "i", "nt"),
		b.numeric(rplISupport,
			"NETWORK="+server,
			"CHANTYPES=#!",
			"CASEMAPPING=ascii",
			"are supported by this server"),
		b.numeric(errNoMotd, "MOTD File is missing"),
	}
	for _, msg := range burst {
		if err := b.write(msg); err != nil {
			return err
		}
	}
	return nil
}

// syncNick renames the client to its Matrix localpart so that it recognises
// its own echoed JOINs and messages.
func (b *Bridge) syncNick() error {
	nick := Nick(b.remote.UserID())
	if nick == b.nick {
		return nil
	}
	old := b.nick
	b.nick = nick
	b.log.Debug().Str("old_nick", old).Str("nick", nick).Msg("Renaming client")
	return b.write(&irc.Message{
		Prefix:  &irc.Prefix{Name: old, User: old, Host: b.cfg.ServerName},
		Command: "NICK",
		Params:  []string{nick},
	})
}
