package board

import (
	"log"
	"sort"

	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
)

var (
	errToggleInFlight = utils.NewAppError(utils.ErrToggleInFlight, "a like toggle is already pending for this post", nil)
	errUnknownPost    = utils.NewStaleReferenceError("post is not in the local view")
)

// pendingToggle remembers the pre-toggle state so a failed durable write can
// be compensated exactly.
type pendingToggle struct {
	prevLiked bool
	prevCount int
}

// View is one client's reconciled picture of a board: the top-level feed
// (pinned first, then newest first), per-thread reply lists (oldest first),
// and the viewer's own like set. It is owned by a single client actor and
// mutated only from its mailbox; the live event stream is treated as a
// best-effort incremental update over the snapshot, applied at most once
// per event id and idempotently per post id.
type View struct {
	viewerID uuid.UUID

	feed            []*models.Post
	repliesByParent map[uuid.UUID][]*models.Post
	loadedThreads   map[uuid.UUID]bool
	likedByMe       map[uuid.UUID]bool
	pending         map[uuid.UUID]*pendingToggle
	seen            map[uuid.UUID]bool
}

func NewView(viewerID uuid.UUID) *View {
	return &View{
		viewerID:        viewerID,
		repliesByParent: make(map[uuid.UUID][]*models.Post),
		loadedThreads:   make(map[uuid.UUID]bool),
		likedByMe:       make(map[uuid.UUID]bool),
		pending:         make(map[uuid.UUID]*pendingToggle),
		seen:            make(map[uuid.UUID]bool),
	}
}

// ApplyEvent folds a domain event into the view. Duplicate deliveries are
// dropped by event id; events referencing unknown posts fail soft and never
// disturb the feed.
func (v *View) ApplyEvent(event models.Event) {
	if event.Kind.IsPresence() {
		return
	}
	if v.seen[event.ID] {
		return
	}
	v.seen[event.ID] = true

	switch event.Kind {
	case models.EventPostCreated:
		if event.Post != nil {
			v.ApplyCreated(event.Post)
		}
	case models.EventPostDeleted:
		v.ApplyDeleted(event.PostID)
	case models.EventPostLiked:
		v.ApplyLiked(event.PostID, event.LikeCount)
	}
}

// ApplyCreated inserts a top-level post into the feed in sort position, or
// appends a reply to its thread. Both paths are idempotent against
// duplicate delivery of the same post id.
func (v *View) ApplyCreated(post *models.Post) {
	copied := *post
	copied.ViewerHasLiked = v.likedByMe[post.ID]

	if !copied.IsReply() {
		if v.indexInFeed(copied.ID) >= 0 {
			return
		}
		v.insertIntoFeed(&copied)
		return
	}

	parentID := *copied.ReplyTo
	for _, existing := range v.repliesByParent[parentID] {
		if existing.ID == copied.ID {
			return
		}
	}
	// Replies are insertion-order (oldest first); no re-sort. If the
	// thread was never loaded the reply is stashed and surfaces only
	// once the thread is expanded.
	v.repliesByParent[parentID] = append(v.repliesByParent[parentID], &copied)

	if parent := v.findInFeed(parentID); parent != nil {
		parent.ReplyCount++
	}
}

// ApplyDeleted removes the post wherever it currently lives: the feed (also
// dropping its cached thread) or one of the open reply lists.
func (v *View) ApplyDeleted(postID uuid.UUID) {
	if i := v.indexInFeed(postID); i >= 0 {
		v.feed = append(v.feed[:i], v.feed[i+1:]...)
		delete(v.repliesByParent, postID)
		delete(v.loadedThreads, postID)
		delete(v.likedByMe, postID)
		return
	}

	// A reply could be under any open thread; thread sizes keep this
	// linear scan cheap.
	for parentID, replies := range v.repliesByParent {
		for i, reply := range replies {
			if reply.ID != postID {
				continue
			}
			v.repliesByParent[parentID] = append(replies[:i], replies[i+1:]...)
			delete(v.likedByMe, postID)
			if parent := v.findInFeed(parentID); parent != nil && parent.ReplyCount > 0 {
				parent.ReplyCount--
			}
			return
		}
	}
}

// ApplyLiked sets the broadcast absolute like count on the matching post. A
// pending local toggle wins: its resolution carries the count the store
// returned for this viewer's own write.
func (v *View) ApplyLiked(postID uuid.UUID, likeCount int) {
	if _, inFlight := v.pending[postID]; inFlight {
		return
	}
	if post := v.find(postID); post != nil {
		post.LikeCount = likeCount
	}
}

// BeginToggle optimistically flips the viewer's like on the post before the
// durable write starts. At most one toggle may be in flight per post; the
// pending guard is the serialization point for rapid repeat toggles.
func (v *View) BeginToggle(postID uuid.UUID) (liked bool, likeCount int, err error) {
	if _, inFlight := v.pending[postID]; inFlight {
		return false, 0, errToggleInFlight
	}

	post := v.find(postID)
	if post == nil {
		return false, 0, errUnknownPost
	}

	v.pending[postID] = &pendingToggle{
		prevLiked: v.likedByMe[postID],
		prevCount: post.LikeCount,
	}

	if v.likedByMe[postID] {
		delete(v.likedByMe, postID)
		post.LikeCount--
		post.ViewerHasLiked = false
	} else {
		v.likedByMe[postID] = true
		post.LikeCount++
		post.ViewerHasLiked = true
	}

	return post.ViewerHasLiked, post.LikeCount, nil
}

// ResolveToggle settles the pending toggle: on success the store's absolute
// count replaces the optimistic one; on failure membership and count return
// exactly to their pre-toggle values.
func (v *View) ResolveToggle(postID uuid.UUID, liked bool, likeCount int, failed bool) {
	p, inFlight := v.pending[postID]
	if !inFlight {
		log.Printf("Ignoring toggle resolution for post %s with no pending record", postID)
		return
	}
	delete(v.pending, postID)

	post := v.find(postID)

	if failed {
		if p.prevLiked {
			v.likedByMe[postID] = true
		} else {
			delete(v.likedByMe, postID)
		}
		if post != nil {
			post.LikeCount = p.prevCount
			post.ViewerHasLiked = p.prevLiked
		}
		return
	}

	if liked {
		v.likedByMe[postID] = true
	} else {
		delete(v.likedByMe, postID)
	}
	if post != nil {
		post.LikeCount = likeCount
		post.ViewerHasLiked = liked
	}
}

// HasPendingToggle reports whether a like write is in flight for the post.
func (v *View) HasPendingToggle(postID uuid.UUID) bool {
	_, inFlight := v.pending[postID]
	return inFlight
}

// SetSnapshot wholesale-replaces the feed from an authoritative store
// fetch, as done at subscribe time and after every reconnect. Cached
// threads are dropped; they reload on demand. Pending toggles survive:
// their resolutions carry authoritative counts.
func (v *View) SetSnapshot(posts []*models.Post) {
	v.feed = make([]*models.Post, 0, len(posts))
	v.repliesByParent = make(map[uuid.UUID][]*models.Post)
	v.loadedThreads = make(map[uuid.UUID]bool)
	v.likedByMe = make(map[uuid.UUID]bool)

	for _, post := range posts {
		copied := *post
		if copied.ViewerHasLiked {
			v.likedByMe[copied.ID] = true
		}
		v.feed = append(v.feed, &copied)
	}
	v.sortFeed()
}

// SetThread wholesale-populates one thread from a store fetch and marks it
// loaded; later created events for this parent append instead of
// re-fetching.
func (v *View) SetThread(parentID uuid.UUID, replies []*models.Post) {
	list := make([]*models.Post, 0, len(replies))
	for _, reply := range replies {
		copied := *reply
		if copied.ViewerHasLiked {
			v.likedByMe[copied.ID] = true
		}
		list = append(list, &copied)
	}
	v.repliesByParent[parentID] = list
	v.loadedThreads[parentID] = true
}

// Feed returns a copy of the reconciled top-level feed.
func (v *View) Feed() []*models.Post {
	feed := make([]*models.Post, 0, len(v.feed))
	for _, post := range v.feed {
		copied := *post
		feed = append(feed, &copied)
	}
	return feed
}

// Thread returns the known replies under a parent and whether the thread
// has been loaded from the store. Stashed live replies for an unloaded
// thread are withheld until a load populates it.
func (v *View) Thread(parentID uuid.UUID) ([]*models.Post, bool) {
	loaded := v.loadedThreads[parentID]
	if !loaded {
		return nil, false
	}
	replies := make([]*models.Post, 0, len(v.repliesByParent[parentID]))
	for _, reply := range v.repliesByParent[parentID] {
		copied := *reply
		replies = append(replies, &copied)
	}
	return replies, true
}

// ThreadLoaded reports whether loadReplies has populated the parent's thread.
func (v *View) ThreadLoaded(parentID uuid.UUID) bool {
	return v.loadedThreads[parentID]
}

// HasLiked reports the viewer's reconciled like state for a post.
func (v *View) HasLiked(postID uuid.UUID) bool {
	return v.likedByMe[postID]
}

// find locates a post in the feed or any open thread.
func (v *View) find(postID uuid.UUID) *models.Post {
	if post := v.findInFeed(postID); post != nil {
		return post
	}
	for _, replies := range v.repliesByParent {
		for _, reply := range replies {
			if reply.ID == postID {
				return reply
			}
		}
	}
	return nil
}

func (v *View) findInFeed(postID uuid.UUID) *models.Post {
	if i := v.indexInFeed(postID); i >= 0 {
		return v.feed[i]
	}
	return nil
}

func (v *View) indexInFeed(postID uuid.UUID) int {
	for i, post := range v.feed {
		if post.ID == postID {
			return i
		}
	}
	return -1
}

func (v *View) insertIntoFeed(post *models.Post) {
	i := sort.Search(len(v.feed), func(i int) bool {
		return feedLess(post, v.feed[i])
	})
	v.feed = append(v.feed, nil)
	copy(v.feed[i+1:], v.feed[i:])
	v.feed[i] = post
}

func (v *View) sortFeed() {
	sort.SliceStable(v.feed, func(i, j int) bool {
		return feedLess(v.feed[i], v.feed[j])
	})
}

// feedLess orders the feed: pinned posts before unpinned, newest first
// within each group.
func feedLess(a, b *models.Post) bool {
	if a.IsPinned != b.IsPinned {
		return a.IsPinned
	}
	return a.CreatedAt.After(b.CreatedAt)
}
