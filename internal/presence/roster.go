// Package presence tracks who is on a board topic right now. The register
// is keyed by connection (one user with two open sessions occupies two
// slots) and deduplicated by user only when read for display.
package presence

import (
	"sort"

	"boardroom/internal/models"

	"github.com/google/uuid"
)

// Roster is the ephemeral per-topic register. It is an explicit object with
// a lifecycle tied to its owner (a subscription on the client, a topic on
// the broker), never process-global state. It is not safe for concurrent
// use; owners serialize access (the client actor's mailbox, the broker's
// loop).
type Roster struct {
	entries map[uuid.UUID]*models.PresenceEntry
}

func NewRoster() *Roster {
	return &Roster{
		entries: make(map[uuid.UUID]*models.PresenceEntry),
	}
}

// Apply folds a presence event into the register. Join and update are both
// upserts: a client receiving its own announce back applies it like any
// other. Unknown kinds are ignored.
func (r *Roster) Apply(event models.Event) {
	if event.Entry == nil {
		return
	}
	switch event.Kind {
	case models.EventPresenceJoin, models.EventPresenceUpdate:
		r.Upsert(event.Entry)
	case models.EventPresenceLeave:
		r.Remove(event.Entry.ConnectionID)
	}
}

func (r *Roster) Upsert(entry *models.PresenceEntry) {
	copied := *entry
	r.entries[entry.ConnectionID] = &copied
}

func (r *Roster) Remove(connectionID uuid.UUID) {
	delete(r.entries, connectionID)
}

// Reset drops every entry; used when connectivity is lost and the register
// can no longer be trusted.
func (r *Roster) Reset() {
	r.entries = make(map[uuid.UUID]*models.PresenceEntry)
}

// Load replaces the register wholesale from a server snapshot.
func (r *Roster) Load(entries []*models.PresenceEntry) {
	r.Reset()
	for _, entry := range entries {
		r.Upsert(entry)
	}
}

// Size is the raw connection-keyed register size.
func (r *Roster) Size() int {
	return len(r.entries)
}

// Online returns the roster deduplicated by user; when a user holds several
// connections the most recently seen entry represents them. Sorted by
// username then user id for stable display.
func (r *Roster) Online() []*models.PresenceEntry {
	byUser := make(map[uuid.UUID]*models.PresenceEntry)
	for _, entry := range r.entries {
		current, ok := byUser[entry.UserID]
		if !ok || entry.LastSeen.After(current.LastSeen) {
			byUser[entry.UserID] = entry
		}
	}

	online := make([]*models.PresenceEntry, 0, len(byUser))
	for _, entry := range byUser {
		copied := *entry
		online = append(online, &copied)
	}
	sort.Slice(online, func(i, j int) bool {
		if online[i].Username != online[j].Username {
			return online[i].Username < online[j].Username
		}
		return online[i].UserID.String() < online[j].UserID.String()
	})
	return online
}

// OnlineCount is the deduplicated-by-user size.
func (r *Roster) OnlineCount() int {
	seen := make(map[uuid.UUID]bool)
	for _, entry := range r.entries {
		seen[entry.UserID] = true
	}
	return len(seen)
}
