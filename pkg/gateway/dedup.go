// Copyright 2024-2026 Aiku AI

package gateway

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"maunium.net/go/mautrix/id"
)

// DefaultDedupCapacity is the number of event IDs remembered when the
// configuration does not say otherwise.
const DefaultDedupCapacity = 4096

// Deduplicator remembers the IDs of the most recently processed remote
// events. Events without an ID are never considered seen.
type Deduplicator struct {
	seen *lru.Cache[id.EventID, struct{}]
}

// NewDeduplicator creates a Deduplicator holding up to capacity IDs. The
// least recently recorded ID is forgotten first.
func NewDeduplicator(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	// lru.New only fails for a non-positive size.
	seen, _ := lru.New[id.EventID, struct{}](capacity)
	return &Deduplicator{seen: seen}
}

// HasSeen reports whether evtID was recorded before.
func (d *Deduplicator) HasSeen(evtID id.EventID) bool {
	if evtID == "" {
		return false
	}
	return d.seen.Contains(evtID)
}

// Record marks evtID as processed.
func (d *Deduplicator) Record(evtID id.EventID) {
	if evtID == "" {
		return
	}
	d.seen.Add(evtID, struct{}{})
}

// Len returns the number of remembered IDs.
func (d *Deduplicator) Len() int {
	return d.seen.Len()
}
