package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mcoot/scanogram/internal/dependencies/clock"
	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

// DefaultMaxLength is the longest message accepted when no limit is configured
const DefaultMaxLength = 500

// Config holds message limits
type Config struct {
	MaxLength int
}

// Log is the append-only message history of each room. Appends to one room
// are serialized by the caller through the room lock domain, which fixes the
// order every member observes.
type Log struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	cfg     Config
}

// New creates a new Log
func New(storage storage.Storage, clock clock.Clock, random random.Random, cfg Config) *Log {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	return &Log{
		storage: storage,
		clock:   clock,
		random:  random,
		cfg:     cfg,
	}
}

// Append records a message from an active member. Text is trimmed; blank text
// returns ErrEmptyMessage and text over the length limit ErrInvalidMessage.
func (l *Log) Append(ctx context.Context, code model.RoomCode, playerID model.PlayerID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > l.cfg.MaxLength {
		return nil, fmt.Errorf("%w: %d characters exceeds %d", model.ErrInvalidMessage, n, l.cfg.MaxLength)
	}

	if _, err := l.storage.GetRoom(ctx, code); err != nil {
		return nil, err
	}
	membership, err := l.storage.GetMembership(ctx, code, playerID)
	if errors.Is(err, model.ErrMembershipNotFound) {
		return nil, model.ErrNotInRoom
	}
	if err != nil {
		return nil, err
	}
	if !membership.IsActive {
		return nil, model.ErrNotInRoom
	}

	message := &model.Message{
		ID:         l.random.UUID(),
		RoomID:     code,
		PlayerID:   playerID,
		PlayerName: membership.PlayerName,
		Text:       text,
		CreatedAt:  l.clock.Now(),
	}
	if err := l.storage.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// List returns a room's messages in the order they were appended
func (l *Log) List(ctx context.Context, code model.RoomCode) ([]*model.Message, error) {
	return l.storage.GetMessagesForRoom(ctx, code)
}
