package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"boardroom/internal/board"
	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/handlers"
	"boardroom/internal/middleware"
	"boardroom/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	metrics := utils.NewMetricsCollector()

	// Open the durable store
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close(context.Background())

	// Start the event channel broker
	broker := channel.NewBroker(cfg.Board)
	go broker.Run()
	defer broker.Stop()

	// Command surface shared by HTTP handlers and live clients
	commands := board.NewCommands(store, broker, cfg.Board, metrics)

	server := handlers.NewServer(commands, broker, store, metrics, cfg)

	// Set up HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HandleHealth())
	mux.HandleFunc("/board/posts", server.HandlePosts())
	mux.HandleFunc("/board/post", server.HandleDeletePost())
	mux.HandleFunc("/board/post/like", server.HandleToggleLike())
	mux.HandleFunc("/board/post/replies", server.HandleReplies())
	mux.HandleFunc("/board/presence", server.HandlePresence())

	// The websocket route authenticates via query parameter, so it sits
	// outside the JWT middleware chain.
	mux.HandleFunc("/ws", server.HandleWebSocket())

	corsConfig := middleware.DefaultCORSConfig(cfg.AllowedOrigins)
	handler := middleware.CORSMiddleware(corsConfig)(authExceptWS(mux))

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting board room server on %s (store: %s, topic: %q)", serverAddr, cfg.Database.Type, cfg.Board.DefaultTopic)
	if err := http.ListenAndServe(serverAddr, handler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// openStore picks the durable store implementation from config.
func openStore(cfg *config.Config) (database.Store, error) {
	switch cfg.Database.Type {
	case "mongo":
		return database.NewMongoDB(cfg.Database.URI, cfg.Database.Name)
	default:
		return database.NewMemoryStore(), nil
	}
}

// authExceptWS applies JWT auth to everything except the websocket route,
// which validates its own token from the query string.
func authExceptWS(next http.Handler) http.Handler {
	authed := middleware.AuthMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
}
