// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
}

// DatabaseConfig holds durable-store configuration settings
type DatabaseConfig struct {
	Type string // "mongo" or "memory"
	URI  string
	Name string
}

// BoardConfig holds the live-board tunables
type BoardConfig struct {
	// DefaultTopic is the room every client lands in.
	DefaultTopic string

	// MaxContentLength rejects oversized posts before any network call.
	MaxContentLength int

	// WriteTimeout bounds a durable write; a write that outlives it is
	// reported as a transient failure so optimistic state can be reverted.
	WriteTimeout time.Duration

	// PresenceTTL is how long a connection may stay silent before the
	// broker sweeps its presence entry and broadcasts a leave.
	PresenceTTL time.Duration

	// ReconnectDelay is how long a dropped subscription waits before the
	// broker re-attaches it under a fresh connection id.
	ReconnectDelay time.Duration
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Board          *BoardConfig
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
	}
}

// DefaultDatabaseConfig provides default durable-store settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type: "memory",
		Name: "boardroom",
	}
}

// DefaultBoardConfig provides default board settings
func DefaultBoardConfig() *BoardConfig {
	return &BoardConfig{
		DefaultTopic:     "board-room",
		MaxContentLength: 2000,
		WriteTimeout:     5 * time.Second,
		PresenceTTL:      90 * time.Second,
		ReconnectDelay:   2 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Silent failure if no .env exists, which is fine
	_ = godotenv.Load()

	serverConfig := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	dbConfig := DefaultDatabaseConfig()

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = dbType
	}

	switch dbConfig.Type {
	case "memory":
		// Nothing to configure.
	case "mongo":
		dbConfig.URI = os.Getenv("MONGODB_URI")
		if dbConfig.URI == "" {
			return nil, fmt.Errorf("MONGODB_URI environment variable is required when DB_TYPE is mongo")
		}
		dbConfig.Name = getEnvOrDefault("DB_NAME", "boardroom")
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (expected \"mongo\" or \"memory\")", dbConfig.Type)
	}

	boardConfig := DefaultBoardConfig()

	if topic := os.Getenv("BOARD_TOPIC"); topic != "" {
		boardConfig.DefaultTopic = topic
	}

	if maxLenStr := os.Getenv("BOARD_MAX_CONTENT_LENGTH"); maxLenStr != "" {
		if maxLen, err := strconv.Atoi(maxLenStr); err == nil && maxLen > 0 {
			boardConfig.MaxContentLength = maxLen
		}
	}

	if d, ok := durationEnv("BOARD_WRITE_TIMEOUT"); ok {
		boardConfig.WriteTimeout = d
	}
	if d, ok := durationEnv("BOARD_PRESENCE_TTL"); ok {
		boardConfig.PresenceTTL = d
	}
	if d, ok := durationEnv("BOARD_RECONNECT_DELAY"); ok {
		boardConfig.ReconnectDelay = d
	}

	config := &Config{
		Server:         serverConfig,
		Database:       dbConfig,
		Board:          boardConfig,
		AllowedOrigins: []string{"*"}, // Default to allow all origins
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	return config, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string) (time.Duration, bool) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d, true
		}
	}
	return 0, false
}
