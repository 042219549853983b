// Copyright 2024-2026 Aiku AI

package gateway

import "fmt"

// SessionError reports a failure to establish the remote session: login or
// the initial snapshot. It ends the client session.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure to talk to the IRC client, or a poll
// cycle that kept failing after all retries. It ends the client session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a credential that was missing when USER
// triggered the login sequence.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing %s: send PASS before USER", e.Field)
}
