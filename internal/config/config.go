// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	redisstorage "github.com/mcoot/scanogram/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// Log format constants
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config is the server configuration
type Config struct {
	Host        string `env:"HOST"`
	Port        int    `env:"PORT,default=5002"`
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`

	StorageType    string        `env:"STORAGE_TYPE,default=memory"`
	RedisURL       string        `env:"REDIS_URL"`
	RedisPlayerTTL time.Duration `env:"REDIS_PLAYER_TTL,default=168h"`
	RedisRoomTTL   time.Duration `env:"REDIS_ROOM_TTL,default=24h"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	MaxRoomPlayers   int `env:"MAX_ROOM_PLAYERS,default=16"`
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH,default=500"`
}

// Load reads a .env file from the working directory when one exists, then
// the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnviron()
}

// FromEnviron reads the configuration from the process environment only
func FromEnviron() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c Config) Validate() error {
	var errs []error
	switch c.StorageType {
	case StorageTypeMemory:
	case StorageTypeRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORAGE_TYPE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORAGE_TYPE %q: must be %q or %q", c.StorageType, StorageTypeMemory, StorageTypeRedis))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}
	if c.MaxRoomPlayers < 2 {
		errs = append(errs, fmt.Errorf("MAX_ROOM_PLAYERS must be at least 2, got %d", c.MaxRoomPlayers))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatText {
		errs = append(errs, fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr is the listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits CORS_ORIGINS into individual origins
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Redis returns the Redis store settings
func (c Config) Redis() redisstorage.Config {
	cfg := redisstorage.DefaultConfig()
	cfg.URL = c.RedisURL
	cfg.PlayerTTL = c.RedisPlayerTTL
	cfg.RoomTTL = c.RedisRoomTTL
	return cfg
}

// Level parses LOG_LEVEL
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the root logger writing to stdout
func (c Config) NewLogger() *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	if c.LogFormat == LogFormatText {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
