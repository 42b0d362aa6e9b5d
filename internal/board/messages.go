package board

import (
	"boardroom/internal/models"

	"github.com/google/uuid"
)

// Message types for the board client actor
type (
	CreatePostMsg struct {
		Content     string             `json:"content"`
		ContentType models.ContentType `json:"contentType"`
	}

	CreateReplyMsg struct {
		ParentID uuid.UUID `json:"parentId"`
		Content  string    `json:"content"`
	}

	ToggleLikeMsg struct {
		PostID uuid.UUID `json:"postId"`
	}

	DeletePostMsg struct {
		PostID uuid.UUID `json:"postId"`
	}

	FetchRepliesMsg struct {
		ParentID uuid.UUID `json:"parentId"`
	}

	SetPresenceMsg struct {
		Status      string `json:"status"`
		CurrentPage string `json:"currentPage"`
	}

	GetFeedMsg struct{}

	GetThreadMsg struct {
		ParentID uuid.UUID `json:"parentId"`
	}

	GetPresenceMsg struct{}

	// DropConnectionMsg severs the session's current attachment, as a flaky
	// transport would; the broker reattaches it after the configured delay.
	DropConnectionMsg struct{}
)

// Result types
type (
	ToggleLikeResult struct {
		PostID    uuid.UUID `json:"postId"`
		Liked     bool      `json:"liked"`
		LikeCount int       `json:"likeCount"`
	}

	ThreadResult struct {
		ParentID uuid.UUID      `json:"parentId"`
		Replies  []*models.Post `json:"replies"`
		Loaded   bool           `json:"loaded"`
	}

	PresenceInfo struct {
		Online      bool                    `json:"online"`
		Roster      []*models.PresenceEntry `json:"roster"`
		OnlineCount int                     `json:"onlineCount"`
		Connections int                     `json:"connections"`
	}
)

// Internal messages the actor sends itself
type (
	// eventMsg carries one event from the subscription pump.
	eventMsg struct {
		event models.Event
	}

	// statusMsg carries a connectivity transition.
	statusMsg struct {
		online bool
	}

	// likeResultMsg reports the outcome of an in-flight durable like write.
	likeResultMsg struct {
		postID    uuid.UUID
		liked     bool
		likeCount int
		err       error
	}
)
