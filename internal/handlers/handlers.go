package handlers

import (
	"time"

	"boardroom/internal/board"
	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/utils"
)

// Server holds all server dependencies for the HTTP surface. HTTP writes go
// through the same Commands service the live client actors use, so every
// durable write fans its event out to subscribers regardless of which door
// it came in through.
type Server struct {
	Commands       *board.Commands
	Broker         *channel.Broker
	Store          database.Store
	Metrics        *utils.MetricsCollector
	Config         *config.Config
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	commands *board.Commands,
	broker *channel.Broker,
	store database.Store,
	metrics *utils.MetricsCollector,
	cfg *config.Config,
) *Server {
	return &Server{
		Commands:       commands,
		Broker:         broker,
		Store:          store,
		Metrics:        metrics,
		Config:         cfg,
		RequestTimeout: 5 * time.Second, // Default timeout for store-backed requests
	}
}

// topicOrDefault resolves the board topic for a request.
func (s *Server) topicOrDefault(topic string) string {
	if topic == "" {
		return s.Config.Board.DefaultTopic
	}
	return topic
}
