package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnviron_Defaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "CORS_ORIGINS", "STORAGE_TYPE", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT", "MAX_ROOM_PLAYERS", "MAX_MESSAGE_LENGTH"} {
		// Setenv restores the original value when the test ends
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := FromEnviron()
	require.NoError(t, err)

	assert.Equal(t, 5002, cfg.Port)
	assert.Equal(t, ":5002", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.Origins())
	assert.Equal(t, StorageTypeMemory, cfg.StorageType)
	assert.Equal(t, 16, cfg.MaxRoomPlayers)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
}

func TestFromEnviron_Overrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("STORAGE_TYPE", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("REDIS_ROOM_TTL", "2h")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("MAX_ROOM_PLAYERS", "4")

	cfg, err := FromEnviron()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Origins())
	assert.Equal(t, 4, cfg.MaxRoomPlayers)

	redis := cfg.Redis()
	assert.Equal(t, "redis://cache:6379", redis.URL)
	assert.Equal(t, 2*time.Hour, redis.RoomTTL)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.NotNil(t, cfg.NewLogger())
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:             5002,
		StorageType:      StorageTypeMemory,
		LogLevel:         "info",
		LogFormat:        LogFormatJSON,
		MaxRoomPlayers:   16,
		MaxMessageLength: 500,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"unknown storage", func(c *Config) { c.StorageType = "postgres" }, "STORAGE_TYPE"},
		{"redis without url", func(c *Config) { c.StorageType = StorageTypeRedis }, "REDIS_URL"},
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"room too small", func(c *Config) { c.MaxRoomPlayers = 1 }, "MAX_ROOM_PLAYERS"},
		{"no message length", func(c *Config) { c.MaxMessageLength = 0 }, "MAX_MESSAGE_LENGTH"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
