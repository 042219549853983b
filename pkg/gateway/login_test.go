// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

func TestLoginRejectedCredentials(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.loginErrs = []error{fmt.Errorf("%w: M_FORBIDDEN", matrix.ErrCredentialsRejected)}
	rb := startBridge(t, remote)

	rb.conn.Send(t, "PASS wrong")
	rb.conn.Send(t, "NICK alice")
	rb.conn.Send(t, "USER alice 0 * :Alice")
	err := rb.wait(t)

	var sessionErr *SessionError
	if !errors.As(err, &sessionErr) || sessionErr.Op != "login" {
		t.Fatalf("expected login SessionError, got %v", err)
	}
	if !errors.Is(err, matrix.ErrCredentialsRejected) {
		t.Errorf("cause lost: %v", err)
	}
	c := remote.Counts()
	if c.logins != 1 {
		t.Errorf("rejected credentials must not be retried, got %d logins", c.logins)
	}
	if c.snapshots != 0 || c.polls != 0 || c.logouts != 0 {
		t.Errorf("nothing may follow a failed login: %+v", c)
	}
	if n := len(rb.conn.WithCommand(rplWelcome)); n != 0 {
		t.Errorf("welcome sent after failed login")
	}
	if n := len(rb.conn.WithCommand("ERROR")); n != 1 {
		t.Errorf("ERROR replies: got %d, want 1", n)
	}
}

func TestLoginRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	flaky := errors.New("connection reset")
	remote.loginErrs = []error{flaky, flaky}
	rb := startBridge(t, remote)
	rb.register(t)

	if n := remote.Counts().logins; n != 3 {
		t.Errorf("logins: got %d, want 3", n)
	}
}

func TestLoginGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	flaky := errors.New("connection reset")
	remote.loginErrs = []error{flaky, flaky, flaky, flaky, flaky}
	rb := startBridge(t, remote)

	rb.conn.Send(t, "PASS hunter2")
	rb.conn.Send(t, "USER alice 0 * :Alice")
	err := rb.wait(t)

	if !errors.Is(err, flaky) {
		t.Fatalf("expected the last login error, got %v", err)
	}
	if n := remote.Counts().logins; n != defaultLoginRetries+1 {
		t.Errorf("logins: got %d, want %d", n, defaultLoginRetries+1)
	}
}

func TestLoginSnapshotFailure(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.snapErr = errors.New("sync timed out")
	rb := startBridge(t, remote)

	rb.conn.Send(t, "PASS hunter2")
	rb.conn.Send(t, "USER alice 0 * :Alice")
	err := rb.wait(t)

	var sessionErr *SessionError
	if !errors.As(err, &sessionErr) || sessionErr.Op != "initial snapshot" {
		t.Fatalf("expected snapshot SessionError, got %v", err)
	}
	c := remote.Counts()
	if c.polls != 0 {
		t.Errorf("poller started after failed snapshot")
	}
	if c.logouts != 1 {
		t.Errorf("the established session should be logged out, got %d", c.logouts)
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name  string
		lines []string
		field string
	}{
		{"password", []string{"NICK alice", "USER alice 0 * :Alice"}, "password"},
		{"blank password", []string{"PASS :   ", "USER alice 0 * :Alice"}, "password"},
		{"username", []string{"PASS hunter2", "USER"}, "username"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			remote := newFakeRemote()
			rb := startBridge(t, remote)
			for _, line := range tc.lines {
				rb.conn.Send(t, line)
			}
			err := rb.wait(t)

			var configErr *ConfigurationError
			if !errors.As(err, &configErr) || configErr.Field != tc.field {
				t.Fatalf("expected ConfigurationError for %s, got %v", tc.field, err)
			}
			if n := remote.Counts().logins; n != 0 {
				t.Errorf("logins: got %d, want 0", n)
			}
		})
	}
}

func TestLoginTrimsCredentials(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	rb := startBridge(t, remote)
	rb.conn.Send(t, "PASS :  hunter2 ")
	rb.conn.Send(t, "USER alice 0 * :Alice")
	waitFor(t, "first poll", func() bool { return remote.Counts().polls == 1 })

	if user, pass := remote.Credentials(); user != "alice" || pass != "hunter2" {
		t.Errorf("credentials: got %q/%q", user, pass)
	}
}

func TestWelcomeBurst(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	rb := startBridge(t, remote)
	rb.register(t)

	welcome := rb.conn.WithCommand(rplWelcome)
	if len(welcome) != 1 {
		t.Fatalf("welcome replies: got %d", len(welcome))
	}
	if got, want := welcome[0].String(), ":irc.test 001 alice :Welcome to irc.test, alice!alice@example.org"; got != want {
		t.Errorf("001: got %q, want %q", got, want)
	}

	isupport := rb.conn.WithCommand(rplISupport)
	if len(isupport) != 1 {
		t.Fatalf("005 replies: got %d", len(isupport))
	}
	for _, token := range []string{"NETWORK=irc.test", "CHANTYPES=#!", "CASEMAPPING=ascii"} {
		if !slices.Contains(isupport[0].Params, token) {
			t.Errorf("005 lacks %s: %q", token, isupport[0].String())
		}
	}

	myInfo := rb.conn.WithCommand(rplMyInfo)
	if len(myInfo) != 1 || myInfo[0].Params[1] != "irc.test" || myInfo[0].Params[2] != Version {
		t.Errorf("004: %q", lines(myInfo))
	}
}

func TestLoginRenamesClientToLocalpart(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	rb := startBridge(t, remote)
	rb.conn.Send(t, "PASS hunter2")
	rb.conn.Send(t, "NICK ali")
	rb.conn.Send(t, "USER ali 0 * :Alice")
	waitFor(t, "welcome", func() bool { return len(rb.conn.WithCommand(errNoMotd)) == 1 })
	rb.sync(t, "nick")

	nicks := rb.conn.WithCommand("NICK")
	if len(nicks) != 1 {
		t.Fatalf("NICK messages: got %q", lines(nicks))
	}
	if got, want := nicks[0].String(), ":ali!ali@irc.test NICK alice"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	pong := rb.conn.WithCommand("PONG")
	if len(pong) != 1 || pong[0].Prefix.Name != "irc.test" {
		t.Errorf("PONG: %q", lines(pong))
	}
	// Replies after the rename address the new nick.
	rb.conn.Send(t, "JOIN")
	rb.sync(t, "after")
	if replies := rb.conn.WithCommand(errNeedMoreParams); len(replies) != 1 || replies[0].Params[0] != "alice" {
		t.Errorf("461: %q", lines(replies))
	}
}
