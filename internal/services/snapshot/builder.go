package snapshot

import (
	"context"
	"slices"

	"github.com/samber/lo"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

// Builder assembles the denormalized views sent to clients. It only reads,
// so a snapshot taken while holding the room lock is consistent.
type Builder struct {
	storage storage.Storage
}

// New creates a new Builder
func New(storage storage.Storage) *Builder {
	return &Builder{storage: storage}
}

// Room returns a populated view of one room: memberships in join order and
// messages in arrival order.
func (b *Builder) Room(ctx context.Context, code model.RoomCode) (*model.PopulatedRoom, error) {
	room, err := b.storage.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	memberships, err := b.storage.GetMembershipsForRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	messages, err := b.storage.GetMessagesForRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	populated := &model.PopulatedRoom{
		Room:            *room,
		RoomMemberships: lo.Map(memberships, func(m *model.Membership, _ int) model.Membership { return *m }),
		Messages:        lo.Map(messages, func(m *model.Message, _ int) model.Message { return *m }),
	}
	slices.SortStableFunc(populated.RoomMemberships, func(a, b model.Membership) int {
		return a.JoinedAt.Compare(b.JoinedAt)
	})
	return populated, nil
}

// PlayerRooms returns populated views of every room the player has a
// membership in, active or not, in join order
func (b *Builder) PlayerRooms(ctx context.Context, playerID model.PlayerID) ([]*model.PopulatedRoom, error) {
	memberships, err := b.storage.GetMembershipsForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	codes := lo.Uniq(lo.Map(memberships, func(m *model.Membership, _ int) model.RoomCode { return m.RoomID }))
	rooms := make([]*model.PopulatedRoom, 0, len(codes))
	for _, code := range codes {
		room, err := b.Room(ctx, code)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// Player returns a player together with their devices
func (b *Builder) Player(ctx context.Context, playerID model.PlayerID) (*model.PopulatedPlayer, error) {
	player, err := b.storage.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	devices, err := b.storage.GetDevices(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return &model.PopulatedPlayer{
		Player:  *player,
		Devices: lo.Map(devices, func(d *model.Device, _ int) model.Device { return *d }),
	}, nil
}

// Overview returns the app-wide room and player counts
func (b *Builder) Overview(ctx context.Context) (model.AppOverview, error) {
	rooms, err := b.storage.CountRooms(ctx)
	if err != nil {
		return model.AppOverview{}, err
	}
	players, err := b.storage.CountPlayers(ctx)
	if err != nil {
		return model.AppOverview{}, err
	}
	return model.AppOverview{TotalRooms: rooms, TotalPlayers: players}, nil
}
