package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mcoot/scanogram/internal/dependencies/clock"
	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

const (
	// CodeLength is the length of generated room codes
	CodeLength = 6
	// CodeAlphabet is the characters room codes are drawn from
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxCodeAttempts bounds rejection sampling before giving up
	maxCodeAttempts = 64

	// DefaultMaxPlayers is the largest room accepted when no limit is configured
	DefaultMaxPlayers = 16
)

// Config holds room limits
type Config struct {
	MaxPlayers int
}

// Directory creates rooms and owns their lifecycle: code allocation, the
// game-started flag and the recorded winner.
//
// Mutations of an existing room are serialized by the caller through the
// room lock domain.
type Directory struct {
	storage  storage.Storage
	clock    clock.Clock
	random   random.Random
	validate *validator.Validate
	cfg      Config
}

// New creates a new Directory
func New(storage storage.Storage, clock clock.Clock, random random.Random, cfg Config) *Directory {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = DefaultMaxPlayers
	}
	return &Directory{
		storage:  storage,
		clock:    clock,
		random:   random,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

// NormalizeCode canonicalizes user-typed codes
func NormalizeCode(code string) model.RoomCode {
	return model.RoomCode(strings.ToUpper(strings.TrimSpace(code)))
}

// Validate checks a room configuration, returning ErrInvalidConfig on failure
func (d *Directory) Validate(cfg model.RoomConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if err := d.validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	if cfg.MaxPlayers > d.cfg.MaxPlayers {
		return fmt.Errorf("%w: maxPlayers must be at most %d", model.ErrInvalidConfig, d.cfg.MaxPlayers)
	}
	return nil
}

// AllocateCode claims a fresh room code. Codes are drawn uniformly and
// redrawn on collision; the claim itself is atomic in storage, so two
// concurrent callers never receive the same code.
func (d *Directory) AllocateCode(ctx context.Context) (model.RoomCode, error) {
	for range maxCodeAttempts {
		code := model.RoomCode(d.random.String(CodeLength, CodeAlphabet))
		ok, err := d.storage.ReserveRoomCode(ctx, code)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", model.ErrCodeSpaceExhausted
}

// Create saves a new room under a code previously returned by AllocateCode
func (d *Directory) Create(ctx context.Context, code model.RoomCode, cfg model.RoomConfig, admin model.PlayerID) (*model.Room, error) {
	if err := d.Validate(cfg); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	room := &model.Room{
		ID:         code,
		Name:       strings.TrimSpace(cfg.Name),
		MaxPlayers: cfg.MaxPlayers,
		AdminID:    admin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.storage.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// Get retrieves a room by code
func (d *Directory) Get(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	return d.storage.GetRoom(ctx, code)
}

// SetAdmin records a new admin for the room
func (d *Directory) SetAdmin(ctx context.Context, code model.RoomCode, admin model.PlayerID) error {
	room, err := d.storage.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	room.AdminID = admin
	room.UpdatedAt = d.clock.Now()
	return d.storage.SaveRoom(ctx, room)
}

// StartGame flips the room's game-started flag. Only the admin may start the
// game and it can only be started once.
func (d *Directory) StartGame(ctx context.Context, code model.RoomCode, requester model.PlayerID) (*model.Room, error) {
	room, err := d.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.AdminID != requester {
		return nil, model.ErrNotAdmin
	}
	if room.IsGameStarted {
		return nil, model.ErrGameAlreadyStarted
	}

	room.IsGameStarted = true
	room.UpdatedAt = d.clock.Now()
	if err := d.storage.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// RecordWinner stores the first winner claimed for a started game. Later
// claims leave the room unchanged and report false.
func (d *Directory) RecordWinner(ctx context.Context, code model.RoomCode, winner model.PlayerID) (*model.Room, bool, error) {
	room, err := d.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if !room.IsGameStarted {
		return nil, false, model.ErrGameNotStarted
	}
	if room.WinnerID != "" {
		return room, false, nil
	}

	room.WinnerID = winner
	room.UpdatedAt = d.clock.Now()
	if err := d.storage.SaveRoom(ctx, room); err != nil {
		return nil, false, err
	}
	return room, true, nil
}
