// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeHS is a test helper that wraps an httptest.Server simulating the
// parts of the Matrix client-server API the gateway uses. It records calls
// and provides canned responses.
type fakeHS struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	// Password is the only password accepted by /login.
	Password string
	// UserID is returned by a successful /login.
	UserID string
	// Aliases maps room aliases to room IDs for directory lookups.
	Aliases map[string]string
	// Syncs holds sync responses served in order. Once exhausted, /sync
	// returns an empty batch.
	Syncs []string
	// FailEndpoints causes path fragments to return 500.
	FailEndpoints map[string]bool

	sent int
}

func newFakeHS() *fakeHS {
	f := &fakeHS{
		Password:      "hunter2",
		UserID:        "@alice:example.org",
		Aliases:       make(map[string]string),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeHS) Close() {
	f.Server.Close()
}

func (f *fakeHS) record(r *http.Request, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
}

func (f *fakeHS) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// CallsTo returns the recorded calls whose path contains fragment.
func (f *fakeHS) CallsTo(fragment string) []endpointCall {
	var out []endpointCall
	for _, c := range f.Calls() {
		if strings.Contains(c.Path, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMatrixError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"errcode": code, "error": msg})
}

func (f *fakeHS) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r, string(body))

	path := r.URL.Path
	for fragment := range f.FailEndpoints {
		if strings.Contains(path, fragment) {
			writeMatrixError(w, http.StatusInternalServerError, "M_UNKNOWN", "fake error")
			return
		}
	}

	switch {
	// POST /_matrix/client/v3/login
	case r.Method == http.MethodPost && path == "/_matrix/client/v3/login":
		var req struct {
			Password string `json:"password"`
		}
		_ = json.Unmarshal(body, &req)
		if req.Password != f.Password {
			writeMatrixError(w, http.StatusForbidden, "M_FORBIDDEN", "Invalid username or password")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"user_id":      f.UserID,
			"access_token": "syt_token",
			"device_id":    "DEVICE",
		})

	// GET /_matrix/client/v3/sync
	case r.Method == http.MethodGet && path == "/_matrix/client/v3/sync":
		f.mu.Lock()
		var resp string
		if len(f.Syncs) > 0 {
			resp, f.Syncs = f.Syncs[0], f.Syncs[1:]
		}
		f.mu.Unlock()
		if resp == "" {
			resp = `{"next_batch":"empty"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, resp)

	// GET /_matrix/client/v3/directory/room/{alias}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/_matrix/client/v3/directory/room/"):
		alias := strings.TrimPrefix(path, "/_matrix/client/v3/directory/room/")
		roomID, ok := f.Aliases[alias]
		if !ok {
			writeMatrixError(w, http.StatusNotFound, "M_NOT_FOUND", "Room alias not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "servers": []string{"example.org"}})

	// POST /_matrix/client/v3/rooms/{roomID}/join
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/join"):
		parts := strings.Split(path, "/")
		writeJSON(w, http.StatusOK, map[string]string{"room_id": parts[len(parts)-2]})

	// PUT /_matrix/client/v3/rooms/{roomID}/send/{type}/{txnID}
	case r.Method == http.MethodPut && strings.Contains(path, "/send/"):
		f.mu.Lock()
		f.sent++
		n := f.sent
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$sent" + strings.Repeat("x", n)})

	// POST /_matrix/client/v3/logout
	case r.Method == http.MethodPost && path == "/_matrix/client/v3/logout":
		writeJSON(w, http.StatusOK, map[string]string{})

	default:
		writeMatrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "Unrecognized request")
	}
}
