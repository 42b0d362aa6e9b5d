package database

import (
	"context"

	"boardroom/internal/models"

	"github.com/google/uuid"
)

// Store defines the durable-store surface the board consumes. Implementations
// must perform ToggleLike atomically server-side; like counts are never
// recomputed client-side from separately fetched values.
type Store interface {
	// Connection
	Close(ctx context.Context) error

	// Reads. viewerID selects whose like edges populate ViewerHasLiked;
	// uuid.Nil means no viewer.
	ListTopLevelPosts(ctx context.Context, topic string, viewerID uuid.UUID) ([]*models.Post, error)
	ListReplies(ctx context.Context, parentID uuid.UUID, viewerID uuid.UUID) ([]*models.Post, error)
	GetPost(ctx context.Context, id uuid.UUID, viewerID uuid.UUID) (*models.Post, error)

	// Writes. CreatePost assigns ID and CreatedAt and, for replies,
	// increments the parent's reply count. DeletePost is author-only.
	CreatePost(ctx context.Context, post *models.Post) (*models.Post, error)
	DeletePost(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) error

	// ToggleLike flips the (userID, postID) like edge and adjusts the
	// post's like count by exactly one, atomically. It returns the new
	// viewer-relative liked state and the resulting count.
	ToggleLike(ctx context.Context, postID uuid.UUID, userID uuid.UUID) (liked bool, likeCount int, err error)
}
