package channel

import (
	"sync"

	"boardroom/internal/models"

	"github.com/google/uuid"
)

// Buffered channel capacity for outbound events per subscriber.
const subscriptionBuffer = 256

// Subscription is one client's attachment to a topic. Events arrive on a
// buffered channel in relay order; the connectivity channel reports
// transport state transitions (false on drop, true once the broker has
// reattached the subscription under a new connection id).
type Subscription struct {
	broker   *Broker
	topic    string
	userID   uuid.UUID
	username string

	mu     sync.Mutex
	connID uuid.UUID

	events chan models.Event
	status chan bool

	closeOnce sync.Once
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) UserID() uuid.UUID {
	return s.userID
}

// ConnectionID identifies the current attachment. It changes every time the
// broker reattaches the subscription after a drop.
func (s *Subscription) ConnectionID() uuid.UUID {
	return s.connectionID()
}

// Events delivers topic events in the order the broker relayed them.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

// Connectivity reports transport state changes.
func (s *Subscription) Connectivity() <-chan bool {
	return s.status
}

// Announce publishes or refreshes this connection's presence payload; the
// broker broadcasts the resulting join/update to every subscriber,
// including this one.
func (s *Subscription) Announce(status, currentPage string) {
	req := announceRequest{sub: s, status: status, page: currentPage}
	select {
	case s.broker.announceCh <- req:
	case <-s.broker.stopCh:
	}
}

// Close detaches from the broker; the presence entry is removed and a leave
// event broadcast to the remaining subscribers.
func (s *Subscription) Close() {
	select {
	case s.broker.unregister <- s:
	case <-s.broker.stopCh:
	}
}

func (s *Subscription) connectionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

func (s *Subscription) setConnectionID(id uuid.UUID) {
	s.mu.Lock()
	s.connID = id
	s.mu.Unlock()
}

func (s *Subscription) signalStatus(online bool) {
	select {
	case s.status <- online:
	default:
	}
}

// finish is called by the broker loop once the subscription is fully
// detached; no further sends can occur after this point.
func (s *Subscription) finish() {
	s.closeOnce.Do(func() {
		close(s.events)
		close(s.status)
	})
}
