package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	// Domain events
	EventPostCreated EventKind = "post.created"
	EventPostDeleted EventKind = "post.deleted"
	EventPostLiked   EventKind = "post.liked"

	// Presence events
	EventPresenceJoin   EventKind = "presence.join"
	EventPresenceUpdate EventKind = "presence.update"
	EventPresenceLeave  EventKind = "presence.leave"
)

func (k EventKind) IsPresence() bool {
	switch k {
	case EventPresenceJoin, EventPresenceUpdate, EventPresenceLeave:
		return true
	}
	return false
}

// Event is the envelope fanned out to every subscriber of a topic. ID is
// unique per publication so receivers can apply events at most once.
type Event struct {
	ID    uuid.UUID `json:"id"`
	Topic string    `json:"topic"`
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`

	// Post is set on post.created. PostID is set on post.deleted and
	// post.liked; LikeCount carries the absolute count on post.liked.
	Post      *Post     `json:"post,omitempty"`
	PostID    uuid.UUID `json:"postId,omitempty"`
	LikeCount int       `json:"likeCount,omitempty"`

	// Entry is set on presence events.
	Entry *PresenceEntry `json:"entry,omitempty"`
}

func NewPostCreatedEvent(post *Post) Event {
	return Event{
		ID:    uuid.New(),
		Topic: post.Topic,
		Kind:  EventPostCreated,
		At:    time.Now(),
		Post:  post,
	}
}

func NewPostDeletedEvent(topic string, postID uuid.UUID) Event {
	return Event{
		ID:     uuid.New(),
		Topic:  topic,
		Kind:   EventPostDeleted,
		At:     time.Now(),
		PostID: postID,
	}
}

func NewPostLikedEvent(topic string, postID uuid.UUID, likeCount int) Event {
	return Event{
		ID:        uuid.New(),
		Topic:     topic,
		Kind:      EventPostLiked,
		At:        time.Now(),
		PostID:    postID,
		LikeCount: likeCount,
	}
}

func NewPresenceEvent(kind EventKind, topic string, entry *PresenceEntry) Event {
	return Event{
		ID:    uuid.New(),
		Topic: topic,
		Kind:  kind,
		At:    time.Now(),
		Entry: entry,
	}
}
