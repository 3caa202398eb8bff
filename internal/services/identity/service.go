package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/mcoot/scanogram/internal/dependencies/clock"
	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

// DefaultNameRange bounds the numeric suffix of generated player names
const DefaultNameRange = 1000

// Service resolves connecting clients to durable players and devices.
//
// Callers serialize work on a single player through the player lock domain;
// Service itself does no locking.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
}

// NewService creates a new identity Service
func NewService(storage storage.Storage, clock clock.Clock, random random.Random) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
	}
}

// ResolvePlayer reactivates the player with the candidate id, or mints a new
// player when the candidate is empty or unknown. Client-supplied ids are
// never used to create records.
func (s *Service) ResolvePlayer(ctx context.Context, candidate model.PlayerID) (*model.Player, model.Resolution, error) {
	now := s.clock.Now()

	if candidate != "" {
		player, err := s.storage.GetPlayer(ctx, candidate)
		switch {
		case err == nil:
			player.IsActive = true
			player.LastSeenAt = now
			if err := s.storage.SavePlayer(ctx, player); err != nil {
				return nil, 0, err
			}
			return player, model.ResolutionReactivated, nil
		case !errors.Is(err, model.ErrPlayerNotFound):
			return nil, 0, err
		}
	}

	player := &model.Player{
		ID:         model.PlayerID(s.random.UUID()),
		Name:       fmt.Sprintf("Player-%d", s.random.Intn(DefaultNameRange)),
		CreatedAt:  now,
		LastSeenAt: now,
		IsActive:   true,
	}
	if err := s.storage.SavePlayer(ctx, player); err != nil {
		return nil, 0, err
	}
	return player, model.ResolutionCreated, nil
}

// ResolveDevice finds the player's device matching the descriptor and marks
// it active, or registers a new device. A descriptor matches a stored device
// by id or, when no id was supplied, by fingerprint.
func (s *Service) ResolveDevice(ctx context.Context, playerID model.PlayerID, desc model.DeviceDescriptor) (*model.Device, model.Resolution, error) {
	devices, err := s.storage.GetDevices(ctx, playerID)
	if err != nil {
		return nil, 0, err
	}

	now := s.clock.Now()
	fingerprint := Fingerprint(desc)

	for _, device := range devices {
		if device.ID != desc.ID && device.Fingerprint != fingerprint {
			continue
		}
		device.OS = desc.OS
		device.Type = desc.Type
		device.Browser = desc.Browser
		device.IsActive = true
		device.LastSeenAt = now
		if err := s.storage.SaveDevice(ctx, device); err != nil {
			return nil, 0, err
		}
		return device, model.ResolutionReactivated, nil
	}

	device := &model.Device{
		ID:          model.DeviceID(s.random.UUID()),
		PlayerID:    playerID,
		Fingerprint: fingerprint,
		OS:          desc.OS,
		Type:        desc.Type,
		Browser:     desc.Browser,
		CreatedAt:   now,
		LastSeenAt:  now,
		IsActive:    true,
	}
	if err := s.storage.SaveDevice(ctx, device); err != nil {
		return nil, 0, err
	}
	return device, model.ResolutionCreated, nil
}

// DeactivateDevices marks every active device of the player inactive except
// keep, and returns how many were changed. Pass an empty keep to deactivate
// all of them.
func (s *Service) DeactivateDevices(ctx context.Context, playerID model.PlayerID, keep model.DeviceID) (int, error) {
	devices, err := s.storage.GetDevices(ctx, playerID)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, device := range devices {
		if !device.IsActive || device.ID == keep {
			continue
		}
		device.IsActive = false
		device.LastSeenAt = s.clock.Now()
		if err := s.storage.SaveDevice(ctx, device); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// MarkOffline records that the player has no live connection
func (s *Service) MarkOffline(ctx context.Context, playerID model.PlayerID) error {
	player, err := s.storage.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	player.IsActive = false
	player.LastSeenAt = s.clock.Now()
	return s.storage.SavePlayer(ctx, player)
}

// GetPlayer retrieves a player by id
func (s *Service) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	return s.storage.GetPlayer(ctx, id)
}

// Fingerprint identifies a device by its client-supplied id or, failing
// that, by a hash of what the client reported about itself.
func Fingerprint(desc model.DeviceDescriptor) string {
	if desc.ID != "" {
		return "id:" + string(desc.ID)
	}
	sum := blake2b.Sum256([]byte(desc.OS + "\x00" + desc.Type + "\x00" + desc.Browser))
	return "ua:" + hex.EncodeToString(sum[:16])
}
