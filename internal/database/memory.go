// internal/database/memory.go
package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests, the simulator, and
// dev-mode servers. Like counts are adjusted under the same lock that owns
// the edge set, so they can never drift.
type MemoryStore struct {
	mu             sync.RWMutex
	posts          map[uuid.UUID]*models.Post
	topicPosts     map[string][]uuid.UUID    // top-level only, insertion order
	repliesByPost  map[uuid.UUID][]uuid.UUID // insertion order (oldest first)
	likes          map[uuid.UUID]map[uuid.UUID]bool
	clock          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:         make(map[uuid.UUID]*models.Post),
		topicPosts:    make(map[string][]uuid.UUID),
		repliesByPost: make(map[uuid.UUID][]uuid.UUID),
		likes:         make(map[uuid.UUID]map[uuid.UUID]bool),
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the creation timestamp source; tests use it to build
// feeds with known ordering.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ReplyTo != nil {
		parent, ok := s.posts[*post.ReplyTo]
		if !ok {
			return nil, utils.NewStaleReferenceError("parent post no longer exists")
		}
		if parent.IsReply() {
			return nil, utils.NewAppError(utils.ErrReplyDepth, "cannot reply to a reply", nil)
		}
		if parent.Topic != post.Topic {
			return nil, utils.NewAppError(utils.ErrTopicMismatch, "parent post belongs to a different topic", nil)
		}
		parent.ReplyCount++
	}

	stored := *post
	stored.ID = uuid.New()
	stored.CreatedAt = s.clock()
	stored.LikeCount = 0
	stored.ReplyCount = 0

	s.posts[stored.ID] = &stored
	if stored.ReplyTo == nil {
		s.topicPosts[stored.Topic] = append(s.topicPosts[stored.Topic], stored.ID)
	} else {
		s.repliesByPost[*stored.ReplyTo] = append(s.repliesByPost[*stored.ReplyTo], stored.ID)
	}

	return s.viewOf(&stored, uuid.Nil), nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id uuid.UUID, viewerID uuid.UUID) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "Post not found", nil)
	}
	return s.viewOf(post, viewerID), nil
}

func (s *MemoryStore) ListTopLevelPosts(ctx context.Context, topic string, viewerID uuid.UUID) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.topicPosts[topic]
	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if post, ok := s.posts[id]; ok {
			posts = append(posts, s.viewOf(post, viewerID))
		}
	}

	// Pinned first, then newest first: the snapshot order clients render.
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].IsPinned != posts[j].IsPinned {
			return posts[i].IsPinned
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	return posts, nil
}

func (s *MemoryStore) ListReplies(ctx context.Context, parentID uuid.UUID, viewerID uuid.UUID) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.repliesByPost[parentID]
	replies := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if post, ok := s.posts[id]; ok {
			replies = append(replies, s.viewOf(post, viewerID))
		}
	}

	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})

	return replies, nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return utils.NewAppError(utils.ErrNotFound, "Post not found", nil)
	}

	if post.AuthorID != requesterID {
		return utils.NewForbiddenError("only the author can delete a post")
	}

	delete(s.posts, id)
	delete(s.likes, id)

	if post.ReplyTo == nil {
		s.topicPosts[post.Topic] = removeID(s.topicPosts[post.Topic], id)
		// Replies under a deleted parent are orphaned, not cascaded;
		// they are unreachable once the parent leaves the feed.
	} else {
		s.repliesByPost[*post.ReplyTo] = removeID(s.repliesByPost[*post.ReplyTo], id)
		if parent, ok := s.posts[*post.ReplyTo]; ok && parent.ReplyCount > 0 {
			parent.ReplyCount--
		}
	}

	return nil
}

func (s *MemoryStore) ToggleLike(ctx context.Context, postID uuid.UUID, userID uuid.UUID) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return false, 0, utils.NewAppError(utils.ErrNotFound, "Post not found", nil)
	}

	edges, ok := s.likes[postID]
	if !ok {
		edges = make(map[uuid.UUID]bool)
		s.likes[postID] = edges
	}

	if edges[userID] {
		delete(edges, userID)
		post.LikeCount--
		return false, post.LikeCount, nil
	}

	edges[userID] = true
	post.LikeCount++
	return true, post.LikeCount, nil
}

// viewOf copies a post with ViewerHasLiked resolved for the viewer. Callers
// always get their own copy; canonical state never escapes the lock.
func (s *MemoryStore) viewOf(post *models.Post, viewerID uuid.UUID) *models.Post {
	view := *post
	view.ViewerHasLiked = viewerID != uuid.Nil && s.likes[post.ID][viewerID]
	return &view
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
