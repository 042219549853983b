// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"gopkg.in/irc.v4"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// fakeConn is an in-memory ClientConn. Messages pushed with Send are read by
// the bridge; everything the bridge writes is recorded.
type fakeConn struct {
	in       chan *irc.Message
	closed   chan struct{}
	once     sync.Once
	writeErr error

	mu     sync.Mutex
	writes []*irc.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan *irc.Message, 64),
		closed: make(chan struct{}),
	}
}

// Send queues a raw IRC line for the bridge to read.
func (c *fakeConn) Send(t *testing.T, line string) {
	t.Helper()
	msg, err := irc.ParseMessage(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	c.in <- msg
}

// Hangup simulates the client closing its side of the connection.
func (c *fakeConn) Hangup() {
	close(c.in)
}

func (c *fakeConn) ReadMessage() (*irc.Message, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(msg *irc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, msg.Copy())
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Writes returns everything written so far.
func (c *fakeConn) Writes() []*irc.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]*irc.Message, len(c.writes))
	copy(cp, c.writes)
	return cp
}

// Lines returns the written messages in wire format.
func (c *fakeConn) Lines() []string {
	var out []string
	for _, msg := range c.Writes() {
		out = append(out, msg.String())
	}
	return out
}

// WithCommand returns the written messages with the given command.
func (c *fakeConn) WithCommand(command string) []*irc.Message {
	var out []*irc.Message
	for _, msg := range c.Writes() {
		if msg.Command == command {
			out = append(out, msg)
		}
	}
	return out
}

// pollResult is one scripted answer of fakeRemote.PollOnce.
type pollResult struct {
	events []matrix.Event
	err    error
}

// fakeRemote is a scripted RemoteService that counts every call.
type fakeRemote struct {
	userID    id.UserID
	loginErrs []error
	snapshot  []matrix.Event
	snapErr   error
	polls     chan pollResult
	joinErr   map[string]error
	rooms     map[string]id.RoomID
	sendErr   error
	logoutErr error

	mu        sync.Mutex
	username  string
	password  string
	logins    int
	snapshots int
	pollCalls int
	joins     []string
	sends     []sentMessage
	logouts   int
	loggedIn  bool
}

type sentMessage struct {
	RoomID id.RoomID
	Text   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		userID:  "@alice:example.org",
		polls:   make(chan pollResult, 16),
		joinErr: make(map[string]error),
		rooms:   make(map[string]id.RoomID),
	}
}

func (f *fakeRemote) Login(_ context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	f.username, f.password = username, password
	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
		if err != nil {
			return err
		}
	}
	f.loggedIn = true
	return nil
}

func (f *fakeRemote) InitialSnapshot(_ context.Context) ([]matrix.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return f.snapshot, f.snapErr
}

// PollOnce returns the next scripted result, blocking until one is queued
// or ctx ends.
func (f *fakeRemote) PollOnce(ctx context.Context) ([]matrix.Event, error) {
	f.mu.Lock()
	f.pollCalls++
	f.mu.Unlock()
	select {
	case res := <-f.polls:
		return res.events, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeRemote) Join(_ context.Context, channel string) (id.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, channel)
	if err := f.joinErr[channel]; err != nil {
		return "", err
	}
	if roomID, ok := f.rooms[channel]; ok {
		return roomID, nil
	}
	return id.RoomID("!" + channel[1:]), nil
}

func (f *fakeRemote) Send(_ context.Context, roomID id.RoomID, text string) (id.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends = append(f.sends, sentMessage{RoomID: roomID, Text: text})
	return id.EventID(fmt.Sprintf("$local%d", len(f.sends))), nil
}

func (f *fakeRemote) Logout(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.loggedIn = false
	return f.logoutErr
}

func (f *fakeRemote) UserID() id.UserID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return ""
	}
	return f.userID
}

type remoteCounts struct {
	logins, snapshots, polls, joins, sends, logouts int
}

func (f *fakeRemote) Counts() remoteCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return remoteCounts{
		logins:    f.logins,
		snapshots: f.snapshots,
		polls:     f.pollCalls,
		joins:     len(f.joins),
		sends:     len(f.sends),
		logouts:   f.logouts,
	}
}

func (f *fakeRemote) Credentials() (username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.username, f.password
}

func (f *fakeRemote) Sends() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]sentMessage, len(f.sends))
	copy(cp, f.sends)
	return cp
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{ServerName: "irc.test", LogoutOnQuit: true}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

// newTestBridge creates a bridge whose retries do not wait.
func newTestBridge(t *testing.T, cfg *Config, conn ClientConn, remote RemoteService) *Bridge {
	t.Helper()
	b := NewBridge(cfg, conn, remote, zerolog.Nop())
	b.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	b.poller.newBackOff = b.newBackOff
	return b
}

// runningBridge is a bridge whose Run executes in the background.
type runningBridge struct {
	bridge *Bridge
	conn   *fakeConn
	remote *fakeRemote
	cancel context.CancelFunc
	done   chan error
}

func startBridge(t *testing.T, remote *fakeRemote) *runningBridge {
	t.Helper()
	return startBridgeWithConfig(t, testConfig(t), newFakeConn(), remote)
}

func startBridgeWithConfig(t *testing.T, cfg *Config, conn *fakeConn, remote *fakeRemote) *runningBridge {
	t.Helper()
	b := newTestBridge(t, cfg, conn, remote)
	ctx, cancel := context.WithCancel(context.Background())
	rb := &runningBridge{bridge: b, conn: conn, remote: remote, cancel: cancel, done: make(chan error, 1)}
	go func() { rb.done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-rb.done:
		case <-time.After(5 * time.Second):
			t.Error("bridge did not stop")
		}
	})
	return rb
}

// sync sends a PING and waits for its PONG, so that every command sent
// before it has been handled.
func (rb *runningBridge) sync(t *testing.T, token string) {
	t.Helper()
	rb.conn.Send(t, "PING :"+token)
	waitFor(t, "PONG "+token, func() bool {
		for _, msg := range rb.conn.WithCommand("PONG") {
			if lastParam(msg) == token {
				return true
			}
		}
		return false
	})
}

// register sends the PASS/NICK/USER sequence and waits for the first poll.
func (rb *runningBridge) register(t *testing.T) {
	t.Helper()
	rb.conn.Send(t, "PASS hunter2")
	rb.conn.Send(t, "NICK alice")
	rb.conn.Send(t, "USER alice 0 * :Alice")
	waitFor(t, "first poll", func() bool { return rb.remote.Counts().polls == 1 })
	waitFor(t, "welcome", func() bool { return len(rb.conn.WithCommand(errNoMotd)) == 1 })
}

// wait returns the result of Run.
func (rb *runningBridge) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rb.done:
		rb.done <- err
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Event constructors.

func roomEvt(evtID id.EventID, roomID id.RoomID, evt matrix.RoomEvent) matrix.Event {
	return matrix.Event{ID: evtID, Payload: matrix.RoomScoped{RoomID: roomID, Event: evt}}
}

func aliasEvt(evtID id.EventID, roomID id.RoomID, alias string) matrix.Event {
	return roomEvt(evtID, roomID, matrix.CanonicalAliasSet{Alias: alias})
}

func joinEvt(evtID id.EventID, roomID id.RoomID, user id.UserID) matrix.Event {
	return roomEvt(evtID, roomID, matrix.MembershipChanged{User: user, Membership: event.MembershipJoin})
}

func msgEvt(evtID id.EventID, roomID id.RoomID, sender id.UserID, text string) matrix.Event {
	return roomEvt(evtID, roomID, matrix.MessageSent{Sender: sender, Text: text})
}
