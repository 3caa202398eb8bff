package storage

import (
	"context"

	"github.com/mcoot/scanogram/internal/model"
)

// Storage defines the interface for data persistence.
//
// Implementations make each call atomic on its own. Read-modify-write
// sequences spanning several calls are serialized by the caller through the
// room and player lock domains.
type Storage interface {
	// Player operations
	SavePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	CountPlayers(ctx context.Context) (int, error)

	// Device operations
	SaveDevice(ctx context.Context, device *model.Device) error
	// GetDevices returns a player's devices ordered by creation time
	GetDevices(ctx context.Context, playerID model.PlayerID) ([]*model.Device, error)

	// Room operations

	// ReserveRoomCode atomically claims a code. It returns false if the code
	// was already claimed. Claimed codes are never released.
	ReserveRoomCode(ctx context.Context, code model.RoomCode) (bool, error)
	SaveRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error)
	CountRooms(ctx context.Context) (int, error)

	// Membership operations
	SaveMembership(ctx context.Context, membership *model.Membership) error
	GetMembership(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Membership, error)
	// GetMembershipsForRoom returns a room's memberships in join order
	GetMembershipsForRoom(ctx context.Context, code model.RoomCode) ([]*model.Membership, error)
	// GetMembershipsForPlayer returns a player's memberships in join order
	GetMembershipsForPlayer(ctx context.Context, playerID model.PlayerID) ([]*model.Membership, error)

	// Message operations
	AppendMessage(ctx context.Context, message *model.Message) error
	// GetMessagesForRoom returns a room's messages in arrival order
	GetMessagesForRoom(ctx context.Context, code model.RoomCode) ([]*model.Message, error)
}
