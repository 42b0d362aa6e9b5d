package models

import (
	"time"

	"github.com/google/uuid"
)

// PresenceEntry is the ephemeral presence payload for one connection. A user
// with two open sessions contributes two entries; rosters deduplicate by
// UserID only for display.
type PresenceEntry struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	UserID       uuid.UUID `json:"userId"`
	Username     string    `json:"username,omitempty"`
	Status       string    `json:"status,omitempty"`
	CurrentPage  string    `json:"currentPage,omitempty"`
	LastSeen     time.Time `json:"lastSeen"`
}
