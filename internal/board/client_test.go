package board

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStore wraps the in-memory store so tests can slow down or fail the
// next like write.
type scriptedStore struct {
	database.Store
	likeDelay    time.Duration
	failNextLike atomic.Bool
}

func (s *scriptedStore) ToggleLike(ctx context.Context, postID uuid.UUID, userID uuid.UUID) (bool, int, error) {
	if s.likeDelay > 0 {
		time.Sleep(s.likeDelay)
	}
	if s.failNextLike.CompareAndSwap(true, false) {
		return false, 0, utils.NewTransientError("simulated store outage", nil)
	}
	return s.Store.ToggleLike(ctx, postID, userID)
}

type testRig struct {
	system   *actor.ActorSystem
	broker   *channel.Broker
	store    *scriptedStore
	commands *Commands
	cfg      *config.BoardConfig
	metrics  *utils.MetricsCollector
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	cfg := config.DefaultBoardConfig()
	cfg.ReconnectDelay = 100 * time.Millisecond

	store := &scriptedStore{Store: database.NewMemoryStore()}
	broker := channel.NewBroker(cfg)
	go broker.Run()
	t.Cleanup(broker.Stop)

	metrics := utils.NewMetricsCollector()
	return &testRig{
		system:   actor.NewActorSystem(),
		broker:   broker,
		store:    store,
		commands: NewCommands(store, broker, cfg, metrics),
		cfg:      cfg,
		metrics:  metrics,
	}
}

func (r *testRig) spawnClient(t *testing.T, username string) (*actor.PID, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewClientActor(r.commands, r.broker, r.cfg, r.metrics, r.cfg.DefaultTopic, userID, username)
	})
	pid := r.system.Root.Spawn(props)
	t.Cleanup(func() { r.system.Root.Stop(pid) })
	return pid, userID
}

func (r *testRig) request(t *testing.T, pid *actor.PID, msg interface{}) interface{} {
	t.Helper()
	future := r.system.Root.RequestFuture(pid, msg, 5*time.Second)
	result, err := future.Result()
	require.NoError(t, err)
	return result
}

func (r *testRig) feed(t *testing.T, pid *actor.PID) []*models.Post {
	t.Helper()
	result := r.request(t, pid, &GetFeedMsg{})
	feed, ok := result.([]*models.Post)
	require.True(t, ok, "expected feed, got %T", result)
	return feed
}

func (r *testRig) waitForFeedLen(t *testing.T, pid *actor.PID, want int) []*models.Post {
	t.Helper()
	var feed []*models.Post
	require.Eventually(t, func() bool {
		feed = r.feed(t, pid)
		return len(feed) == want
	}, 5*time.Second, 20*time.Millisecond, "feed never reached %d posts", want)
	return feed
}

func TestClientCreatePostReachesAllClients(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")
	bob, _ := rig.spawnClient(t, "bob")

	result := rig.request(t, alice, &CreatePostMsg{Content: "hello room"})
	post, ok := result.(*models.Post)
	require.True(t, ok, "expected post, got %T", result)
	assert.Equal(t, "hello room", post.Content)
	assert.Equal(t, models.ContentText, post.ContentType)

	// Both the author and the other client converge through the event.
	aliceFeed := rig.waitForFeedLen(t, alice, 1)
	bobFeed := rig.waitForFeedLen(t, bob, 1)
	assert.Equal(t, post.ID, aliceFeed[0].ID)
	assert.Equal(t, post.ID, bobFeed[0].ID)
}

func TestClientRejectsEmptyAndOversizedContent(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")

	result := rig.request(t, alice, &CreatePostMsg{Content: "   "})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok, "expected AppError, got %T", result)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)

	huge := make([]byte, rig.cfg.MaxContentLength+1)
	for i := range huge {
		huge[i] = 'x'
	}
	result = rig.request(t, alice, &CreatePostMsg{Content: string(huge)})
	appErr, ok = result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)
}

func TestClientReplyFlow(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")
	bob, _ := rig.spawnClient(t, "bob")

	post := rig.request(t, alice, &CreatePostMsg{Content: "parent"}).(*models.Post)
	rig.waitForFeedLen(t, bob, 1)

	reply, ok := rig.request(t, bob, &CreateReplyMsg{ParentID: post.ID, Content: "a reply"}).(*models.Post)
	require.True(t, ok)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, post.ID, *reply.ReplyTo)

	// Replying to a reply is rejected.
	result := rig.request(t, alice, &CreateReplyMsg{ParentID: reply.ID, Content: "too deep"})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrReplyDepth, appErr.Code)

	// Replying under a deleted parent is a stale reference.
	result = rig.request(t, alice, &CreateReplyMsg{ParentID: uuid.New(), Content: "ghost"})
	appErr, ok = result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrStaleReference, appErr.Code)

	// The reply counter propagates to the other client's feed.
	require.Eventually(t, func() bool {
		feed := rig.feed(t, alice)
		return len(feed) == 1 && feed[0].ReplyCount == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Fetching the thread loads it oldest-first.
	thread, ok := rig.request(t, alice, &FetchRepliesMsg{ParentID: post.ID}).(*ThreadResult)
	require.True(t, ok)
	assert.True(t, thread.Loaded)
	require.Len(t, thread.Replies, 1)
	assert.Equal(t, reply.ID, thread.Replies[0].ID)
}

func TestClientDeletePost(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")
	bob, _ := rig.spawnClient(t, "bob")

	post := rig.request(t, alice, &CreatePostMsg{Content: "to be removed"}).(*models.Post)
	rig.waitForFeedLen(t, bob, 1)

	// Only the author may delete.
	result := rig.request(t, bob, &DeletePostMsg{PostID: post.ID})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	status, ok := rig.request(t, alice, &DeletePostMsg{PostID: post.ID}).(*models.StatusResponse)
	require.True(t, ok)
	assert.True(t, status.Success)

	rig.waitForFeedLen(t, alice, 0)
	rig.waitForFeedLen(t, bob, 0)

	// Deleting again still succeeds: the post is just as gone.
	status, ok = rig.request(t, alice, &DeletePostMsg{PostID: post.ID}).(*models.StatusResponse)
	require.True(t, ok)
	assert.True(t, status.Success)
}

func TestClientToggleLikeSuccess(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")
	bob, _ := rig.spawnClient(t, "bob")

	post := rig.request(t, alice, &CreatePostMsg{Content: "like me"}).(*models.Post)
	rig.waitForFeedLen(t, bob, 1)

	result, ok := rig.request(t, bob, &ToggleLikeMsg{PostID: post.ID}).(*ToggleLikeResult)
	require.True(t, ok)
	assert.True(t, result.Liked)
	assert.Equal(t, 1, result.LikeCount)

	// The liker sees their own edge; the author sees only the count.
	require.Eventually(t, func() bool {
		feed := rig.feed(t, bob)
		return len(feed) == 1 && feed[0].LikeCount == 1 && feed[0].ViewerHasLiked
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		feed := rig.feed(t, alice)
		return len(feed) == 1 && feed[0].LikeCount == 1 && !feed[0].ViewerHasLiked
	}, 5*time.Second, 20*time.Millisecond)

	// Toggling again removes the like.
	result, ok = rig.request(t, bob, &ToggleLikeMsg{PostID: post.ID}).(*ToggleLikeResult)
	require.True(t, ok)
	assert.False(t, result.Liked)
	assert.Equal(t, 0, result.LikeCount)
}

func TestClientToggleLikeRevertsOnFailure(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")

	post := rig.request(t, alice, &CreatePostMsg{Content: "flaky"}).(*models.Post)
	rig.waitForFeedLen(t, alice, 1)

	rig.store.failNextLike.Store(true)

	result := rig.request(t, alice, &ToggleLikeMsg{PostID: post.ID})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok, "expected AppError, got %T", result)
	assert.Equal(t, utils.ErrTransient, appErr.Code)

	// The optimistic flip is compensated exactly.
	feed := rig.feed(t, alice)
	require.Len(t, feed, 1)
	assert.Equal(t, 0, feed[0].LikeCount)
	assert.False(t, feed[0].ViewerHasLiked)

	// The next toggle goes through.
	liked, ok := rig.request(t, alice, &ToggleLikeMsg{PostID: post.ID}).(*ToggleLikeResult)
	require.True(t, ok)
	assert.True(t, liked.Liked)
	assert.Equal(t, 1, liked.LikeCount)
}

func TestClientToggleLikeSerializedPerPost(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")

	post := rig.request(t, alice, &CreatePostMsg{Content: "spam the button"}).(*models.Post)
	rig.waitForFeedLen(t, alice, 1)

	rig.store.likeDelay = 300 * time.Millisecond

	first := rig.system.Root.RequestFuture(alice, &ToggleLikeMsg{PostID: post.ID}, 5*time.Second)
	time.Sleep(50 * time.Millisecond)

	// The second toggle lands while the first write is still in flight.
	second := rig.request(t, alice, &ToggleLikeMsg{PostID: post.ID})
	appErr, ok := second.(*utils.AppError)
	require.True(t, ok, "expected AppError, got %T", second)
	assert.Equal(t, utils.ErrToggleInFlight, appErr.Code)

	result, err := first.Result()
	require.NoError(t, err)
	settled, ok := result.(*ToggleLikeResult)
	require.True(t, ok)
	assert.True(t, settled.Liked)
	assert.Equal(t, 1, settled.LikeCount)
}

func TestClientReconnectReloadsSnapshot(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := rig.commands.CreatePost(ctx, rig.cfg.DefaultTopic, uuid.New(), "writer", "before the drop", models.ContentText)
		require.NoError(t, err)
	}
	rig.waitForFeedLen(t, alice, 3)

	// Sever the connection; the broker reattaches after the delay.
	status, ok := rig.request(t, alice, &DropConnectionMsg{}).(*models.StatusResponse)
	require.True(t, ok)
	assert.True(t, status.Success)

	// These land in the gap and are never delivered as events.
	for i := 0; i < 2; i++ {
		_, err := rig.commands.CreatePost(ctx, rig.cfg.DefaultTopic, uuid.New(), "writer", "during the gap", models.ContentText)
		require.NoError(t, err)
	}

	// The reconnect snapshot closes the gap.
	rig.waitForFeedLen(t, alice, 5)
}

func TestClientPresenceRoster(t *testing.T) {
	rig := newTestRig(t)
	alice, _ := rig.spawnClient(t, "alice")
	bob, bobID := rig.spawnClient(t, "bob")

	require.Eventually(t, func() bool {
		info := rig.request(t, alice, &GetPresenceMsg{}).(*PresenceInfo)
		return info.Online && info.OnlineCount == 2
	}, 5*time.Second, 20*time.Millisecond)

	status, ok := rig.request(t, bob, &SetPresenceMsg{Status: "away", CurrentPage: "thread"}).(*models.StatusResponse)
	require.True(t, ok)
	assert.True(t, status.Success)

	require.Eventually(t, func() bool {
		info := rig.request(t, alice, &GetPresenceMsg{}).(*PresenceInfo)
		for _, entry := range info.Roster {
			if entry.UserID == bobID && entry.Status == "away" && entry.CurrentPage == "thread" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	// Severing bob's transport removes him from alice's register until
	// the reconnect announce brings him back.
	rig.request(t, bob, &DropConnectionMsg{})
	require.Eventually(t, func() bool {
		info := rig.request(t, alice, &GetPresenceMsg{}).(*PresenceInfo)
		return info.OnlineCount == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		info := rig.request(t, alice, &GetPresenceMsg{}).(*PresenceInfo)
		return info.OnlineCount == 2
	}, 5*time.Second, 20*time.Millisecond)
}
