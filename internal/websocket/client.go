package websocket

import (
	"encoding/json"
	"log"
	"time"

	"boardroom/internal/channel"
	"boardroom/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Frame is the envelope for every message on the wire. Outbound frames carry
// topic events or connectivity transitions; inbound frames carry presence
// announcements.
type Frame struct {
	Type        string        `json:"type"`
	Event       *models.Event `json:"event,omitempty"`
	Online      *bool         `json:"online,omitempty"`
	Status      string        `json:"status,omitempty"`
	CurrentPage string        `json:"currentPage,omitempty"`
}

const (
	FrameEvent    = "event"
	FrameStatus   = "status"
	FramePresence = "presence"
)

// Client is a middleman between a websocket connection and a broker
// subscription. A closed socket ends the subscription for good; a browser
// that reconnects opens a fresh socket, gets a fresh subscription, and is
// expected to re-fetch the feed snapshot over HTTP.
type Client struct {
	UserID uuid.UUID

	// The broker subscription this socket drains.
	Sub *channel.Subscription

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte
}

// Run serializes subscription traffic into the Send channel until the
// subscription is closed, then closes Send so WritePump can finish.
func (c *Client) Run() {
	defer close(c.Send)

	events := c.Sub.Events()
	status := c.Sub.Connectivity()
	for events != nil || status != nil {
		var frame Frame
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			frame = Frame{Type: FrameEvent, Event: &event}
		case online, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			frame = Frame{Type: FrameStatus, Online: &online}
		}

		payload, err := json.Marshal(frame)
		if err != nil {
			log.Printf("WebSocket marshal error for User %s: %v", c.UserID, err)
			continue
		}
		select {
		case c.Send <- payload:
		default:
			log.Printf("WebSocket send buffer full for User %s; dropping frame", c.UserID)
		}
	}
}

// ReadPump pumps messages from the websocket connection into the broker.
// Inbound frames are presence announcements; anything else is logged and
// ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Sub.Close()
		c.Conn.Close()
		log.Printf("WebSocket Client ReadPump stopped for User %s", c.UserID)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for User %s: %v", c.UserID, err)
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("WebSocket received malformed frame from User %s: %v", c.UserID, err)
			continue
		}

		switch frame.Type {
		case FramePresence:
			c.Sub.Announce(frame.Status, frame.CurrentPage)
		default:
			log.Printf("WebSocket received unsupported frame type %q from User %s", frame.Type, c.UserID)
		}
	}
}

// WritePump pumps messages from the Send channel to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		log.Printf("WebSocket Client WritePump stopped for User %s", c.UserID)
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The subscription ended and Run closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("WebSocket write error (NextWriter) for User %s: %v", c.UserID, err)
				return
			}
			w.Write(message)

			// Flush any queued frames into the same websocket message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				log.Printf("WebSocket write error (Close) for User %s: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket write error (Ping) for User %s: %v", c.UserID, err)
				return
			}
		}
	}
}
