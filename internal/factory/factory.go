package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/mcoot/scanogram/internal/config"
	"github.com/mcoot/scanogram/internal/dependencies/clock"
	"github.com/mcoot/scanogram/internal/dependencies/keylock"
	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/services/chat"
	"github.com/mcoot/scanogram/internal/services/directory"
	"github.com/mcoot/scanogram/internal/services/dispatcher"
	"github.com/mcoot/scanogram/internal/services/identity"
	"github.com/mcoot/scanogram/internal/services/ledger"
	"github.com/mcoot/scanogram/internal/services/registry"
	"github.com/mcoot/scanogram/internal/services/snapshot"
	"github.com/mcoot/scanogram/internal/storage"
	"github.com/mcoot/scanogram/internal/storage/memory"
	redisstorage "github.com/mcoot/scanogram/internal/storage/redis"
	"github.com/mcoot/scanogram/internal/web/ws"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Locks  *keylock.Domains

	// Services
	Identity   *identity.Service
	Registry   *registry.Registry
	Rooms      *directory.Directory
	Ledger     *ledger.Ledger
	Chat       *chat.Log
	Snapshots  *snapshot.Builder
	Hubs       *ws.HubManager
	Dispatcher *dispatcher.Dispatcher

	Logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// Directory and Chat hold room and message limits. Zero values use the
	// package defaults.
	Directory directory.Config
	Chat      chat.Config
}

// FromServerConfig converts environment configuration into factory config
func FromServerConfig(cfg config.Config, logger *slog.Logger) Config {
	out := Config{
		Logger:      logger,
		StorageType: cfg.StorageType,
		Directory:   directory.Config{MaxPlayers: cfg.MaxRoomPlayers},
		Chat:        chat.Config{MaxLength: cfg.MaxMessageLength},
	}
	if cfg.StorageType == config.StorageTypeRedis {
		redisCfg := cfg.Redis()
		out.RedisConfig = &redisCfg
	}
	return out
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = config.StorageTypeMemory
	}

	switch storageType {
	case config.StorageTypeMemory:
		store = memory.New()
	case config.StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	return newWithDependencies(store, clock.New(), random.New(), cfg, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *App {
	locks := keylock.NewDomains()
	identityService := identity.NewService(store, clk, rnd)
	registryService := registry.New(identityService, logger)
	rooms := directory.New(store, clk, rnd, cfg.Directory)
	memberships := ledger.New(store, rooms, clk)
	chatLog := chat.New(store, clk, rnd, cfg.Chat)
	snapshots := snapshot.New(store)
	hubs := ws.NewHubManager(logger)

	d := dispatcher.New(dispatcher.Components{
		Locks:     locks,
		Identity:  identityService,
		Registry:  registryService,
		Rooms:     rooms,
		Ledger:    memberships,
		Chat:      chatLog,
		Snapshots: snapshots,
		Hubs:      hubs,
	}, clk, logger)

	return &App{
		Storage:    store,
		Clock:      clk,
		Random:     rnd,
		Locks:      locks,
		Identity:   identityService,
		Registry:   registryService,
		Rooms:      rooms,
		Ledger:     memberships,
		Chat:       chatLog,
		Snapshots:  snapshots,
		Hubs:       hubs,
		Dispatcher: d,
		Logger:     logger,
	}
}

// Close stops the broadcast hubs and releases the storage backend
func (a *App) Close() error {
	a.Hubs.Close()
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
