package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// PlayerTTL applies to player records and their devices
	PlayerTTL time.Duration
	// RoomTTL applies to rooms and everything hanging off them: memberships,
	// membership indexes and message lists
	RoomTTL time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PlayerTTL:    7 * 24 * time.Hour,
		RoomTTL:      24 * time.Hour,
	}
}
