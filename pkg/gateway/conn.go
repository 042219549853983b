// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"io"
	"slices"
	"strings"

	"gopkg.in/irc.v4"
)

// ClientConn is the IRC side of a session.
type ClientConn interface {
	ReadMessage() (*irc.Message, error)
	WriteMessage(msg *irc.Message) error
	Close() error
}

type ircConn struct {
	conn   *irc.Conn
	closer io.Closer
}

// NewClientConn wraps a network connection speaking the IRC line protocol.
// Lines that cannot be parsed are skipped. Outgoing PRIVMSG and NOTICE
// bodies spanning several lines are sent as one message per line; other
// parameters have their line breaks replaced by spaces.
func NewClientConn(rwc io.ReadWriteCloser) ClientConn {
	return &ircConn{conn: irc.NewConn(rwc), closer: rwc}
}

func (c *ircConn) ReadMessage() (*irc.Message, error) {
	for {
		msg, err := c.conn.ReadMessage()
		if isParseError(err) {
			continue
		}
		return msg, err
	}
}

func (c *ircConn) WriteMessage(msg *irc.Message) error {
	for _, line := range splitLines(msg) {
		if err := c.conn.WriteMessage(line); err != nil {
			return err
		}
	}
	return nil
}

func (c *ircConn) Close() error {
	return c.closer.Close()
}

func isParseError(err error) bool {
	return errors.Is(err, irc.ErrZeroLengthMessage) ||
		errors.Is(err, irc.ErrMissingDataAfterPrefix) ||
		errors.Is(err, irc.ErrMissingDataAfterTags) ||
		errors.Is(err, irc.ErrMissingCommand)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func isLineBreak(r rune) bool {
	return r == '\r' || r == '\n'
}

// splitLines returns the wire messages for msg.
func splitLines(msg *irc.Message) []*irc.Message {
	if len(msg.Params) == 0 {
		return []*irc.Message{msg}
	}
	last := len(msg.Params) - 1
	splittable := msg.Command == "PRIVMSG" || msg.Command == "NOTICE"

	params := make([]string, len(msg.Params))
	for i, p := range msg.Params {
		if i == last && splittable {
			params[i] = p
			continue
		}
		params[i] = lineBreaks.Replace(p)
	}
	if !splittable || !strings.ContainsAny(params[last], "\r\n") {
		out := *msg
		out.Params = params
		return []*irc.Message{&out}
	}

	var out []*irc.Message
	for _, line := range strings.FieldsFunc(params[last], isLineBreak) {
		m := *msg
		m.Params = append(slices.Clone(params[:last]), line)
		out = append(out, &m)
	}
	if len(out) == 0 {
		m := *msg
		m.Params = append(slices.Clone(params[:last]), "")
		out = append(out, &m)
	}
	return out
}
