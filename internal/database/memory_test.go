package database

import (
	"context"
	"testing"
	"time"

	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock returns a clock that advances one second per call, so every
// stored post has a distinct timestamp.
func tickingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestMemoryStoreFeedOrdering(t *testing.T) {
	store := NewMemoryStore()
	store.SetClock(tickingClock(time.Now()))
	ctx := context.Background()
	author := uuid.New()

	oldest, err := store.CreatePost(ctx, models.NewTopLevelPost("general", author, "alice", "first", models.ContentText))
	require.NoError(t, err)

	pinnedSrc := models.NewTopLevelPost("general", author, "alice", "pinned", models.ContentAnnouncement)
	pinnedSrc.IsPinned = true
	pinned, err := store.CreatePost(ctx, pinnedSrc)
	require.NoError(t, err)

	newest, err := store.CreatePost(ctx, models.NewTopLevelPost("general", author, "alice", "last", models.ContentText))
	require.NoError(t, err)

	posts, err := store.ListTopLevelPosts(ctx, "general", uuid.Nil)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, pinned.ID, posts[0].ID)
	assert.Equal(t, newest.ID, posts[1].ID)
	assert.Equal(t, oldest.ID, posts[2].ID)

	other, err := store.ListTopLevelPosts(ctx, "random", uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, other, 0)
}

func TestMemoryStoreReplies(t *testing.T) {
	store := NewMemoryStore()
	store.SetClock(tickingClock(time.Now()))
	ctx := context.Background()
	author := uuid.New()

	parent, err := store.CreatePost(ctx, models.NewTopLevelPost("general", author, "alice", "parent", models.ContentText))
	require.NoError(t, err)

	var replyIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		replySrc, ok := models.NewReply(parent, author, "alice", "reply")
		require.True(t, ok)
		reply, err := store.CreatePost(ctx, replySrc)
		require.NoError(t, err)
		replyIDs = append(replyIDs, reply.ID)
	}

	// Oldest first, and the parent's counter tracks.
	replies, err := store.ListReplies(ctx, parent.ID, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, replies, 3)
	for i, reply := range replies {
		assert.Equal(t, replyIDs[i], reply.ID)
	}

	got, err := store.GetPost(ctx, parent.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReplyCount)

	// Replies to replies are rejected at the store boundary too.
	nested, ok := models.NewReply(parent, author, "alice", "again")
	require.True(t, ok)
	nested.ReplyTo = &replies[0].ID
	_, err = store.CreatePost(ctx, nested)
	assert.True(t, utils.IsErrorCode(err, utils.ErrReplyDepth))

	// Replying under a vanished parent is a stale reference.
	orphanParent := *parent
	orphanParent.ID = uuid.New()
	orphan, ok := models.NewReply(&orphanParent, author, "alice", "ghost")
	require.True(t, ok)
	_, err = store.CreatePost(ctx, orphan)
	assert.True(t, utils.IsErrorCode(err, utils.ErrStaleReference))
}

func TestMemoryStoreToggleLike(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	author := uuid.New()
	liker := uuid.New()

	post, err := store.CreatePost(ctx, models.NewTopLevelPost("general", author, "alice", "post", models.ContentText))
	require.NoError(t, err)

	liked, count, err := store.ToggleLike(ctx, post.ID, liker)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, count)

	// The viewer's edge shows up only in their own reads.
	mine, err := store.GetPost(ctx, post.ID, liker)
	require.NoError(t, err)
	assert.True(t, mine.ViewerHasLiked)

	theirs, err := store.GetPost(ctx, post.ID, author)
	require.NoError(t, err)
	assert.False(t, theirs.ViewerHasLiked)
	assert.Equal(t, 1, theirs.LikeCount)

	liked, count, err = store.ToggleLike(ctx, post.ID, liker)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 0, count)

	_, _, err = store.ToggleLike(ctx, uuid.New(), liker)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestMemoryStoreDeletePost(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	author := uuid.New()
	stranger := uuid.New()

	post, err := store.CreatePost(ctx, models.NewTopLevelPost("general", author, "alice", "post", models.ContentText))
	require.NoError(t, err)

	err = store.DeletePost(ctx, post.ID, stranger)
	assert.True(t, utils.IsErrorCode(err, utils.ErrForbidden))

	require.NoError(t, store.DeletePost(ctx, post.ID, author))

	_, err = store.GetPost(ctx, post.ID, uuid.Nil)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))

	posts, err := store.ListTopLevelPosts(ctx, "general", uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, posts, 0)

	err = store.DeletePost(ctx, post.ID, author)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestMemoryStoreDeleteReplyAdjustsParent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	author := uuid.New()

	parent, err := store.CreatePost(ctx, models.NewTopLevelPost("general", author, "alice", "parent", models.ContentText))
	require.NoError(t, err)

	replySrc, ok := models.NewReply(parent, author, "alice", "reply")
	require.True(t, ok)
	reply, err := store.CreatePost(ctx, replySrc)
	require.NoError(t, err)

	require.NoError(t, store.DeletePost(ctx, reply.ID, author))

	got, err := store.GetPost(ctx, parent.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReplyCount)

	replies, err := store.ListReplies(ctx, parent.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Len(t, replies, 0)
}
