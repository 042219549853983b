// Copyright 2024-2026 Aiku AI

package matrix

import (
	"errors"

	"maunium.net/go/mautrix"
)

var (
	// ErrCredentialsRejected is returned by Login when the homeserver refuses
	// the username or password. Retrying will not help.
	ErrCredentialsRejected = errors.New("credentials rejected by homeserver")

	// ErrNotLoggedIn is returned by operations that need a session before
	// Login succeeded.
	ErrNotLoggedIn = errors.New("not logged in")
)

func isAuthError(err error) bool {
	return errors.Is(err, mautrix.MForbidden) ||
		errors.Is(err, mautrix.MUnknownToken) ||
		errors.Is(err, mautrix.MUserDeactivated)
}
