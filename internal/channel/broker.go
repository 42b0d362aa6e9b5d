package channel

import (
	"log"
	"time"

	"boardroom/internal/config"
	"boardroom/internal/models"

	"github.com/google/uuid"
)

type announceRequest struct {
	sub     *Subscription
	status  string
	page    string
}

type rosterRequest struct {
	topic string
	reply chan []*models.PresenceEntry
}

// Broker is the topic-scoped publish/subscribe hub. A single processing
// loop owns the subscriber and presence maps, so every subscriber sees the
// events of a topic in the order the broker relayed them. There is no
// cross-publisher total order and no delivery guarantee to a dropped
// subscriber: clients treat the stream as best-effort incremental updates
// on top of a snapshot fetch.
type Broker struct {
	cfg *config.BoardConfig

	register   chan *Subscription
	unregister chan *Subscription
	publishCh  chan models.Event
	announceCh chan announceRequest
	dropCh     chan *Subscription
	reattachCh chan *Subscription
	rosterCh   chan rosterRequest
	stopCh     chan struct{}

	// Loop-owned state. topic -> subscription set.
	topics map[string]map[*Subscription]bool

	// Server-side presence register: topic -> connectionID -> entry.
	presence map[string]map[uuid.UUID]*models.PresenceEntry

	// Subscriptions whose transport dropped, awaiting reattach.
	dropped map[*Subscription]bool
}

func NewBroker(cfg *config.BoardConfig) *Broker {
	return &Broker{
		cfg:        cfg,
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		publishCh:  make(chan models.Event, 64),
		announceCh: make(chan announceRequest),
		dropCh:     make(chan *Subscription),
		reattachCh: make(chan *Subscription),
		rosterCh:   make(chan rosterRequest),
		stopCh:     make(chan struct{}),
		topics:     make(map[string]map[*Subscription]bool),
		presence:   make(map[string]map[uuid.UUID]*models.PresenceEntry),
		dropped:    make(map[*Subscription]bool),
	}
}

// Run starts the broker's processing loop.
func (b *Broker) Run() {
	log.Println("Event broker started.")

	sweepEvery := b.cfg.PresenceTTL / 3
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	sweeper := time.NewTicker(sweepEvery)
	defer sweeper.Stop()

	for {
		select {
		case sub := <-b.register:
			b.attach(sub)

		case sub := <-b.unregister:
			b.remove(sub)

		case event := <-b.publishCh:
			b.fanOut(event)

		case req := <-b.announceCh:
			b.handleAnnounce(req)

		case sub := <-b.dropCh:
			b.handleDrop(sub)

		case sub := <-b.reattachCh:
			b.handleReattach(sub)

		case req := <-b.rosterCh:
			req.reply <- b.rosterOf(req.topic)

		case <-sweeper.C:
			b.sweepPresence()

		case <-b.stopCh:
			log.Println("Event broker stopped.")
			return
		}
	}
}

func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe attaches a new subscription to the topic under a fresh
// connection id. Delivery begins once the broker loop registers it.
func (b *Broker) Subscribe(topic string, userID uuid.UUID, username string) *Subscription {
	sub := &Subscription{
		broker:   b,
		topic:    topic,
		userID:   userID,
		username: username,
		connID:   uuid.New(),
		events:   make(chan models.Event, subscriptionBuffer),
		status:   make(chan bool, 4),
	}
	select {
	case b.register <- sub:
	case <-b.stopCh:
	}
	return sub
}

// Publish fans the event out to every current subscriber of its topic,
// including the publisher.
func (b *Broker) Publish(event models.Event) {
	select {
	case b.publishCh <- event:
	case <-b.stopCh:
	case <-time.After(time.Second):
		log.Printf("Timeout queueing %s event for topic %s. Broker might be busy or blocked.", event.Kind, event.Topic)
	}
}

// Roster returns the live connection-keyed presence register for a topic.
func (b *Broker) Roster(topic string) []*models.PresenceEntry {
	req := rosterRequest{topic: topic, reply: make(chan []*models.PresenceEntry, 1)}
	select {
	case b.rosterCh <- req:
		return <-req.reply
	case <-b.stopCh:
		return nil
	}
}

// Drop severs a subscription's transport: delivery stops, the subscriber is
// signalled offline, its presence entry is swept, and after the reconnect
// delay the broker reattaches it under a new connection id.
func (b *Broker) Drop(sub *Subscription) {
	select {
	case b.dropCh <- sub:
	case <-b.stopCh:
	}
}

// --- loop-owned handlers ---

func (b *Broker) attach(sub *Subscription) {
	subs, ok := b.topics[sub.topic]
	if !ok {
		subs = make(map[*Subscription]bool)
		b.topics[sub.topic] = subs
	}
	subs[sub] = true
	log.Printf("Subscription registered on topic %q for user %s (connection %s). Subscribers: %d",
		sub.topic, sub.userID, sub.connectionID(), len(subs))
}

func (b *Broker) remove(sub *Subscription) {
	if b.dropped[sub] {
		delete(b.dropped, sub)
		sub.finish()
		return
	}
	if subs, ok := b.topics[sub.topic]; ok && subs[sub] {
		delete(subs, sub)
		b.removePresence(sub)
		sub.finish()
		log.Printf("Subscription removed from topic %q. Remaining subscribers: %d", sub.topic, len(subs))
	}
}

func (b *Broker) fanOut(event models.Event) {
	for sub := range b.topics[event.Topic] {
		select {
		case sub.events <- event:
		default:
			log.Printf("Event buffer full for connection %s on topic %q; %s event dropped.",
				sub.connectionID(), event.Topic, event.Kind)
		}
	}
}

func (b *Broker) handleAnnounce(req announceRequest) {
	sub := req.sub
	if b.dropped[sub] {
		log.Printf("Ignoring announce from dropped connection for user %s", sub.userID)
		return
	}
	if subs, ok := b.topics[sub.topic]; !ok || !subs[sub] {
		return
	}

	entries, ok := b.presence[sub.topic]
	if !ok {
		entries = make(map[uuid.UUID]*models.PresenceEntry)
		b.presence[sub.topic] = entries
	}

	connID := sub.connectionID()
	kind := models.EventPresenceUpdate
	if _, exists := entries[connID]; !exists {
		kind = models.EventPresenceJoin
	}

	entry := &models.PresenceEntry{
		ConnectionID: connID,
		UserID:       sub.userID,
		Username:     sub.username,
		Status:       req.status,
		CurrentPage:  req.page,
		LastSeen:     time.Now(),
	}
	entries[connID] = entry

	b.fanOut(models.NewPresenceEvent(kind, sub.topic, entry))
}

func (b *Broker) handleDrop(sub *Subscription) {
	subs, ok := b.topics[sub.topic]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	b.removePresence(sub)
	b.dropped[sub] = true
	sub.signalStatus(false)
	log.Printf("Connection %s dropped from topic %q; reattaching in %s",
		sub.connectionID(), sub.topic, b.cfg.ReconnectDelay)

	time.AfterFunc(b.cfg.ReconnectDelay, func() {
		select {
		case b.reattachCh <- sub:
		case <-b.stopCh:
		}
	})
}

func (b *Broker) handleReattach(sub *Subscription) {
	if !b.dropped[sub] {
		// Closed while offline; nothing to resume.
		return
	}
	delete(b.dropped, sub)

	// Server-side ephemeral state for the old connection is gone; the
	// subscriber comes back as a brand new connection and must
	// re-announce presence and re-fetch its snapshot.
	sub.setConnectionID(uuid.New())
	b.attach(sub)
	sub.signalStatus(true)
}

func (b *Broker) removePresence(sub *Subscription) {
	entries, ok := b.presence[sub.topic]
	if !ok {
		return
	}
	connID := sub.connectionID()
	entry, exists := entries[connID]
	if !exists {
		return
	}
	delete(entries, connID)
	b.fanOut(models.NewPresenceEvent(models.EventPresenceLeave, sub.topic, entry))
}

func (b *Broker) rosterOf(topic string) []*models.PresenceEntry {
	entries := b.presence[topic]
	roster := make([]*models.PresenceEntry, 0, len(entries))
	for _, entry := range entries {
		copied := *entry
		roster = append(roster, &copied)
	}
	return roster
}

// sweepPresence removes entries that have outlived the presence TTL without
// a refreshing announce and broadcasts their departure.
func (b *Broker) sweepPresence() {
	cutoff := time.Now().Add(-b.cfg.PresenceTTL)
	for topic, entries := range b.presence {
		for connID, entry := range entries {
			if entry.LastSeen.Before(cutoff) {
				delete(entries, connID)
				log.Printf("Presence entry for user %s (connection %s) timed out on topic %q", entry.UserID, connID, topic)
				b.fanOut(models.NewPresenceEvent(models.EventPresenceLeave, topic, entry))
			}
		}
	}
}
