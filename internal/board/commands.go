package board

import (
	"context"
	"errors"
	"strings"
	"time"

	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
)

// Commands is the durable half of the command surface: validate, write to
// the store under a client-side timeout, then publish the resulting domain
// event. Create and delete never touch local view state directly; the
// event round trip is the single source of truth for what happened. The
// like toggle's optimistic local side lives in the client actor; Commands
// only performs its durable write and fan-out.
type Commands struct {
	store   database.Store
	broker  *channel.Broker
	cfg     *config.BoardConfig
	metrics *utils.MetricsCollector
}

func NewCommands(store database.Store, broker *channel.Broker, cfg *config.BoardConfig, metrics *utils.MetricsCollector) *Commands {
	return &Commands{
		store:   store,
		broker:  broker,
		cfg:     cfg,
		metrics: metrics,
	}
}

// CreatePost validates and persists a top-level post, then broadcasts the
// created event to every subscriber of the topic, including the author.
func (c *Commands) CreatePost(ctx context.Context, topic string, authorID uuid.UUID, authorName, content string, contentType models.ContentType) (*models.Post, error) {
	startTime := time.Now()

	if authorID == uuid.Nil {
		return nil, utils.NewUnauthenticatedError("posting requires a signed-in user")
	}
	content, err := c.validateContent(content)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = models.ContentText
	}
	if !contentType.IsValid() {
		return nil, utils.NewValidationError("unknown content type")
	}

	post := models.NewTopLevelPost(topic, authorID, authorName, content, contentType)

	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	created, err := c.store.CreatePost(writeCtx, post)
	if err != nil {
		return nil, storeError("create post", err)
	}

	c.broker.Publish(models.NewPostCreatedEvent(created))
	c.metrics.AddOperationLatency("create_post", time.Since(startTime))
	return created, nil
}

// CreateReply validates and persists a reply under a top-level parent.
func (c *Commands) CreateReply(ctx context.Context, parentID uuid.UUID, authorID uuid.UUID, authorName, content string) (*models.Post, error) {
	startTime := time.Now()

	if authorID == uuid.Nil {
		return nil, utils.NewUnauthenticatedError("replying requires a signed-in user")
	}
	content, err := c.validateContent(content)
	if err != nil {
		return nil, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	parent, err := c.store.GetPost(writeCtx, parentID, uuid.Nil)
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil, utils.NewStaleReferenceError("parent post no longer exists")
		}
		return nil, storeError("fetch parent post", err)
	}

	reply, ok := models.NewReply(parent, authorID, authorName, content)
	if !ok {
		return nil, utils.NewAppError(utils.ErrReplyDepth, "cannot reply to a reply", nil)
	}

	created, err := c.store.CreatePost(writeCtx, reply)
	if err != nil {
		return nil, storeError("create reply", err)
	}

	c.broker.Publish(models.NewPostCreatedEvent(created))
	c.metrics.AddOperationLatency("create_reply", time.Since(startTime))
	return created, nil
}

// DeletePost removes a post the requester authored and broadcasts the
// deleted event. A post that is already gone counts as deleted: the
// requester asked for an absence that now holds.
func (c *Commands) DeletePost(ctx context.Context, topic string, postID uuid.UUID, requesterID uuid.UUID) error {
	startTime := time.Now()

	if requesterID == uuid.Nil {
		return utils.NewUnauthenticatedError("deleting requires a signed-in user")
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	if err := c.store.DeletePost(writeCtx, postID, requesterID); err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil
		}
		return storeError("delete post", err)
	}

	c.broker.Publish(models.NewPostDeletedEvent(topic, postID))
	c.metrics.AddOperationLatency("delete_post", time.Since(startTime))
	return nil
}

// ToggleLike performs the durable half of a like toggle and broadcasts the
// resulting absolute count.
func (c *Commands) ToggleLike(ctx context.Context, topic string, postID uuid.UUID, userID uuid.UUID) (bool, int, error) {
	startTime := time.Now()

	if userID == uuid.Nil {
		return false, 0, utils.NewUnauthenticatedError("liking requires a signed-in user")
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	liked, likeCount, err := c.store.ToggleLike(writeCtx, postID, userID)
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return false, 0, utils.NewStaleReferenceError("post no longer exists")
		}
		return false, 0, storeError("toggle like", err)
	}

	c.broker.Publish(models.NewPostLikedEvent(topic, postID, likeCount))
	c.metrics.AddOperationLatency("toggle_like", time.Since(startTime))
	return liked, likeCount, nil
}

// FetchReplies loads a thread wholesale from the store, bypassing the event
// channel.
func (c *Commands) FetchReplies(ctx context.Context, parentID uuid.UUID, viewerID uuid.UUID) ([]*models.Post, error) {
	startTime := time.Now()

	readCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	replies, err := c.store.ListReplies(readCtx, parentID, viewerID)
	if err != nil {
		return nil, storeError("fetch replies", err)
	}

	c.metrics.AddOperationLatency("fetch_replies", time.Since(startTime))
	return replies, nil
}

// Snapshot loads the authoritative top-level feed for a topic; clients call
// it at subscribe time and again after every reconnect, since events
// published across a disconnect window are lost to them.
func (c *Commands) Snapshot(ctx context.Context, topic string, viewerID uuid.UUID) ([]*models.Post, error) {
	startTime := time.Now()

	readCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	posts, err := c.store.ListTopLevelPosts(readCtx, topic, viewerID)
	if err != nil {
		return nil, storeError("fetch snapshot", err)
	}

	c.metrics.AddOperationLatency("fetch_snapshot", time.Since(startTime))
	return posts, nil
}

func (c *Commands) validateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", utils.NewValidationError("content cannot be empty")
	}
	if len(trimmed) > c.cfg.MaxContentLength {
		return "", utils.NewValidationError("content is too long")
	}
	return trimmed, nil
}

// storeError maps a failed store call onto the error taxonomy: AppErrors
// pass through, timeouts and unknown failures surface as transient so
// callers know a retry may succeed.
func storeError(op string, err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return utils.NewTransientError("timed out trying to "+op, err)
	}
	return utils.NewTransientError("failed to "+op, err)
}
