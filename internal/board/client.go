package board

import (
	stdctx "context"
	"log"
	"time"

	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/models"
	"boardroom/internal/presence"
	"boardroom/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// ClientActor is one user's live session on a board topic: it owns that
// session's View and Roster, consumes the subscription's event stream
// through its mailbox, and exposes the command surface. Every mutation of
// local state happens inside Receive, so the reconciler needs no locks; the
// only in-flight coordination is the per-post pending-toggle guard.
type ClientActor struct {
	commands *Commands
	broker   *channel.Broker
	cfg      *config.BoardConfig
	metrics  *utils.MetricsCollector

	topic    string
	userID   uuid.UUID
	username string

	view   *View
	roster *presence.Roster
	online bool

	sub *channel.Subscription

	// Requesters awaiting an in-flight like write, keyed by post id.
	likeWaiters map[uuid.UUID]*actor.PID

	lastStatus string
	lastPage   string
}

func NewClientActor(commands *Commands, broker *channel.Broker, cfg *config.BoardConfig, metrics *utils.MetricsCollector, topic string, userID uuid.UUID, username string) actor.Actor {
	return &ClientActor{
		commands:    commands,
		broker:      broker,
		cfg:         cfg,
		metrics:     metrics,
		topic:       topic,
		userID:      userID,
		username:    username,
		view:        NewView(userID),
		roster:      presence.NewRoster(),
		likeWaiters: make(map[uuid.UUID]*actor.PID),
		lastStatus:  "online",
	}
}

// Receive handles incoming messages
func (a *ClientActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.handleStarted(context)

	case *actor.Stopping:
		if a.sub != nil {
			a.sub.Close()
		}

	case *actor.Stopped:
		log.Printf("Board client stopped for user %s on topic %q", a.userID, a.topic)

	case *eventMsg:
		a.handleEvent(msg.event)

	case *statusMsg:
		a.handleStatus(context, msg.online)

	case *CreatePostMsg:
		a.handleCreatePost(context, msg)

	case *CreateReplyMsg:
		a.handleCreateReply(context, msg)

	case *ToggleLikeMsg:
		a.handleToggleLike(context, msg)

	case *likeResultMsg:
		a.handleLikeResult(context, msg)

	case *DeletePostMsg:
		a.handleDeletePost(context, msg)

	case *FetchRepliesMsg:
		a.handleFetchReplies(context, msg)

	case *SetPresenceMsg:
		a.handleSetPresence(context, msg)

	case *GetFeedMsg:
		context.Respond(a.view.Feed())

	case *GetThreadMsg:
		replies, loaded := a.view.Thread(msg.ParentID)
		context.Respond(&ThreadResult{ParentID: msg.ParentID, Replies: replies, Loaded: loaded})

	case *DropConnectionMsg:
		if a.online {
			a.broker.Drop(a.sub)
		}
		context.Respond(&models.StatusResponse{Success: true})

	case *GetPresenceMsg:
		context.Respond(&PresenceInfo{
			Online:      a.online,
			Roster:      a.roster.Online(),
			OnlineCount: a.roster.OnlineCount(),
			Connections: a.roster.Size(),
		})

	default:
		log.Printf("Board client: Unknown message type: %T", msg)
	}
}

// handleStarted subscribes, loads the authoritative snapshot, announces
// presence, and starts the pump that forwards subscription traffic into the
// mailbox. Live events are applied only on top of the snapshot.
func (a *ClientActor) handleStarted(context actor.Context) {
	a.sub = a.broker.Subscribe(a.topic, a.userID, a.username)
	a.online = true

	a.loadSnapshot()
	a.roster.Load(a.broker.Roster(a.topic))
	a.sub.Announce(a.lastStatus, a.lastPage)

	root := context.ActorSystem().Root
	self := context.Self()
	go pump(a.sub, root, self)

	log.Printf("Board client started for user %s on topic %q (connection %s)", a.userID, a.topic, a.sub.ConnectionID())
}

// pump forwards subscription events and connectivity transitions into the
// actor's mailbox, preserving their order.
func pump(sub *channel.Subscription, root *actor.RootContext, self *actor.PID) {
	events := sub.Events()
	status := sub.Connectivity()
	for events != nil || status != nil {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			root.Send(self, &eventMsg{event: event})
		case online, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			root.Send(self, &statusMsg{online: online})
		}
	}
}

func (a *ClientActor) handleEvent(event models.Event) {
	if event.Kind.IsPresence() {
		a.roster.Apply(event)
		return
	}
	a.view.ApplyEvent(event)
}

// handleStatus reacts to connectivity transitions. Offline invalidates the
// roster; coming back means the old connection's server state is gone and
// any events published meanwhile were missed, so the client re-fetches the
// snapshot and re-announces itself.
func (a *ClientActor) handleStatus(context actor.Context, online bool) {
	if a.online == online {
		return
	}
	a.online = online

	if !online {
		a.roster.Reset()
		log.Printf("Board client for user %s went offline", a.userID)
		return
	}

	log.Printf("Board client for user %s reconnected as connection %s; reloading snapshot", a.userID, a.sub.ConnectionID())
	a.loadSnapshot()
	a.roster.Load(a.broker.Roster(a.topic))
	a.sub.Announce(a.lastStatus, a.lastPage)
}

func (a *ClientActor) loadSnapshot() {
	posts, err := a.commands.Snapshot(stdctx.Background(), a.topic, a.userID)
	if err != nil {
		log.Printf("Board client: CRITICAL - failed to load snapshot for topic %q: %v", a.topic, err)
		return
	}
	a.view.SetSnapshot(posts)
}

// handleCreatePost performs the durable write; the post reaches the feed
// via the created event echoed back through the subscription, never by
// direct insertion.
func (a *ClientActor) handleCreatePost(context actor.Context, msg *CreatePostMsg) {
	post, err := a.commands.CreatePost(stdctx.Background(), a.topic, a.userID, a.username, msg.Content, msg.ContentType)
	if err != nil {
		context.Respond(asAppError(err))
		return
	}
	context.Respond(post)
}

func (a *ClientActor) handleCreateReply(context actor.Context, msg *CreateReplyMsg) {
	reply, err := a.commands.CreateReply(stdctx.Background(), msg.ParentID, a.userID, a.username, msg.Content)
	if err != nil {
		context.Respond(asAppError(err))
		return
	}
	context.Respond(reply)
}

// handleToggleLike is the one optimistic path: flip the local state first,
// then run the durable write off the mailbox and settle when its result
// message comes back. The view's pending guard serializes rapid repeat
// toggles on the same post.
func (a *ClientActor) handleToggleLike(context actor.Context, msg *ToggleLikeMsg) {
	if a.userID == uuid.Nil {
		context.Respond(utils.NewUnauthenticatedError("liking requires a signed-in user"))
		return
	}

	if _, _, err := a.view.BeginToggle(msg.PostID); err != nil {
		context.Respond(asAppError(err))
		return
	}

	a.likeWaiters[msg.PostID] = context.Sender()

	root := context.ActorSystem().Root
	self := context.Self()
	postID := msg.PostID
	go func() {
		liked, likeCount, err := a.commands.ToggleLike(stdctx.Background(), a.topic, postID, a.userID)
		root.Send(self, &likeResultMsg{postID: postID, liked: liked, likeCount: likeCount, err: err})
	}()
}

func (a *ClientActor) handleLikeResult(context actor.Context, msg *likeResultMsg) {
	waiter := a.likeWaiters[msg.postID]
	delete(a.likeWaiters, msg.postID)

	if msg.err != nil {
		a.view.ResolveToggle(msg.postID, false, 0, true)
		a.metrics.IncrementErrors()
		log.Printf("Like toggle failed for post %s; optimistic state reverted: %v", msg.postID, msg.err)
		if waiter != nil {
			context.Send(waiter, asAppError(msg.err))
		}
		return
	}

	a.view.ResolveToggle(msg.postID, msg.liked, msg.likeCount, false)
	if waiter != nil {
		context.Send(waiter, &ToggleLikeResult{PostID: msg.postID, Liked: msg.liked, LikeCount: msg.likeCount})
	}
}

func (a *ClientActor) handleDeletePost(context actor.Context, msg *DeletePostMsg) {
	if err := a.commands.DeletePost(stdctx.Background(), a.topic, msg.PostID, a.userID); err != nil {
		context.Respond(asAppError(err))
		return
	}
	context.Respond(&models.StatusResponse{Success: true, Message: "Post deleted"})
}

// handleFetchReplies populates the thread wholesale from the store; later
// created events for this parent append to the loaded list instead of
// triggering another fetch.
func (a *ClientActor) handleFetchReplies(context actor.Context, msg *FetchRepliesMsg) {
	startTime := time.Now()

	replies, err := a.commands.FetchReplies(stdctx.Background(), msg.ParentID, a.userID)
	if err != nil {
		context.Respond(asAppError(err))
		return
	}

	a.view.SetThread(msg.ParentID, replies)
	loaded, _ := a.view.Thread(msg.ParentID)
	a.metrics.AddOperationLatency("load_thread", time.Since(startTime))
	context.Respond(&ThreadResult{ParentID: msg.ParentID, Replies: loaded, Loaded: true})
}

func (a *ClientActor) handleSetPresence(context actor.Context, msg *SetPresenceMsg) {
	a.lastStatus = msg.Status
	a.lastPage = msg.CurrentPage
	if a.online {
		a.sub.Announce(a.lastStatus, a.lastPage)
	}
	context.Respond(&models.StatusResponse{Success: true})
}

func asAppError(err error) *utils.AppError {
	if appErr, ok := err.(*utils.AppError); ok {
		return appErr
	}
	return utils.NewTransientError("operation failed", err)
}
