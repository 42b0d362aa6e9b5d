package handlers

import (
	"log"
	"net/http"

	"boardroom/internal/middleware"
	"boardroom/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: check the Origin header against Config.AllowedOrigins
		return true
	},
}

// HandleWebSocket handles WebSocket connection requests. The socket is the
// client's event channel: it carries topic events out and presence
// announcements in. A socket that dies takes its subscription with it; the
// browser opens a new one and re-fetches the feed snapshot over HTTP.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on websocket dials, so the token
		// rides a query parameter.
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			log.Println("WebSocket connection failed: Missing token")
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		claims, err := middleware.ValidateToken(tokenString)
		if err != nil {
			log.Printf("WebSocket connection failed: Invalid token: %v", err)
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		userID := claims.UserID
		if userID == uuid.Nil {
			log.Println("WebSocket connection failed: Nil userID in token claims")
			http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
			return
		}

		topic := s.topicOrDefault(r.URL.Query().Get("topic"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for User %s: %v", userID, err)
			// Cannot write an HTTP error after an upgrade attempt.
			return
		}

		sub := s.Broker.Subscribe(topic, userID, claims.Username)
		client := &websocket.Client{
			UserID: userID,
			Sub:    sub,
			Conn:   conn,
			Send:   make(chan []byte, 256),
		}

		log.Printf("WebSocket client attached for User %s on topic %q (connection %s)", userID, topic, sub.ConnectionID())

		go client.Run()
		go client.WritePump()
		go client.ReadPump()
	}
}
