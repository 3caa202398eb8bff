package ledger

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/mcoot/scanogram/internal/dependencies/clock"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/services/directory"
	"github.com/mcoot/scanogram/internal/storage"
)

// Departure describes a membership that just went inactive. NewAdmin is set
// when the departing player was admin and another active member took over.
type Departure struct {
	Membership model.Membership
	NewAdmin   *model.Membership
}

// Ledger owns room memberships: joining, leaving, capacity and the admin
// flag.
//
// Every method that touches a room is called with the room lock held, and
// with the player lock held when it acts for a player.
type Ledger struct {
	storage storage.Storage
	rooms   *directory.Directory
	clock   clock.Clock
}

// New creates a new Ledger
func New(storage storage.Storage, rooms *directory.Directory, clock clock.Clock) *Ledger {
	return &Ledger{
		storage: storage,
		rooms:   rooms,
		clock:   clock,
	}
}

// Join adds the player to the room. An existing membership is reactivated
// without re-checking capacity, so rejoining is idempotent; a membership that
// was already active reports ResolutionUnchanged. New members are only
// admitted while the number of active members is below MaxPlayers.
func (l *Ledger) Join(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Membership, model.Resolution, error) {
	room, err := l.rooms.Get(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	player, err := l.storage.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, 0, err
	}

	members, err := l.storage.GetMembershipsForRoom(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	now := l.clock.Now()

	existing, found := lo.Find(members, func(m *model.Membership) bool {
		return m.PlayerID == playerID
	})
	if found {
		wasActive := existing.IsActive
		existing.IsActive = true
		existing.LastSeenAt = now
		existing.PlayerName = player.Name
		existing.IsAdmin = room.AdminID == playerID
		if err := l.storage.SaveMembership(ctx, existing); err != nil {
			return nil, 0, err
		}
		if err := l.claimVacantAdmin(ctx, room, members, existing); err != nil {
			return nil, 0, err
		}
		if wasActive {
			return existing, model.ResolutionUnchanged, nil
		}
		return existing, model.ResolutionReactivated, nil
	}

	active := lo.CountBy(members, func(m *model.Membership) bool { return m.IsActive })
	if active >= room.MaxPlayers {
		return nil, 0, model.ErrRoomFull
	}

	membership := &model.Membership{
		RoomID:     code,
		PlayerID:   playerID,
		PlayerName: player.Name,
		IsActive:   true,
		IsAdmin:    room.AdminID == playerID,
		JoinedAt:   now,
		LastSeenAt: now,
	}
	if err := l.storage.SaveMembership(ctx, membership); err != nil {
		return nil, 0, err
	}
	if err := l.claimVacantAdmin(ctx, room, members, membership); err != nil {
		return nil, 0, err
	}
	return membership, model.ResolutionCreated, nil
}

// claimVacantAdmin promotes joiner when the room's admin is not an active
// member, so an occupied room always has an active admin.
func (l *Ledger) claimVacantAdmin(ctx context.Context, room *model.Room, members []*model.Membership, joiner *model.Membership) error {
	if joiner.IsAdmin {
		return nil
	}
	admin, found := lo.Find(members, func(m *model.Membership) bool {
		return m.PlayerID == room.AdminID
	})
	if found && admin.IsActive {
		return nil
	}
	if found {
		admin.IsAdmin = false
		if err := l.storage.SaveMembership(ctx, admin); err != nil {
			return err
		}
	}

	joiner.IsAdmin = true
	if err := l.storage.SaveMembership(ctx, joiner); err != nil {
		return err
	}
	return l.rooms.SetAdmin(ctx, room.ID, joiner.PlayerID)
}

// Leave marks the player's membership inactive. Leaving a room the player is
// not active in returns ErrNotInRoom.
func (l *Ledger) Leave(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*Departure, error) {
	if _, err := l.rooms.Get(ctx, code); err != nil {
		return nil, err
	}
	departure, err := l.deactivate(ctx, code, playerID)
	if err != nil {
		return nil, err
	}
	if departure == nil {
		return nil, model.ErrNotInRoom
	}
	return departure, nil
}

// Degrade marks the player's membership inactive after their last connection
// dropped. It returns nil if there was no active membership to degrade.
func (l *Ledger) Degrade(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*Departure, error) {
	departure, err := l.deactivate(ctx, code, playerID)
	if errors.Is(err, model.ErrNotInRoom) {
		return nil, nil
	}
	return departure, err
}

func (l *Ledger) deactivate(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*Departure, error) {
	membership, err := l.storage.GetMembership(ctx, code, playerID)
	if errors.Is(err, model.ErrMembershipNotFound) {
		return nil, model.ErrNotInRoom
	}
	if err != nil {
		return nil, err
	}
	if !membership.IsActive {
		return nil, nil
	}

	membership.IsActive = false
	membership.LastSeenAt = l.clock.Now()
	departure := &Departure{}

	if membership.IsAdmin {
		successor, err := l.electSuccessor(ctx, code, playerID)
		if err != nil {
			return nil, err
		}
		if successor != nil {
			membership.IsAdmin = false
			departure.NewAdmin = successor
		}
	}

	if err := l.storage.SaveMembership(ctx, membership); err != nil {
		return nil, err
	}
	departure.Membership = *membership
	return departure, nil
}

// electSuccessor promotes the earliest-joined active member other than the
// departing admin. It returns nil when nobody else is active.
func (l *Ledger) electSuccessor(ctx context.Context, code model.RoomCode, departing model.PlayerID) (*model.Membership, error) {
	members, err := l.storage.GetMembershipsForRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	candidates := lo.Filter(members, func(m *model.Membership, _ int) bool {
		return m.IsActive && m.PlayerID != departing
	})
	if len(candidates) == 0 {
		return nil, nil
	}

	successor := lo.MinBy(candidates, func(a, b *model.Membership) bool {
		return a.JoinedAt.Before(b.JoinedAt)
	})
	successor.IsAdmin = true
	if err := l.storage.SaveMembership(ctx, successor); err != nil {
		return nil, err
	}
	if err := l.rooms.SetAdmin(ctx, code, successor.PlayerID); err != nil {
		return nil, err
	}
	return successor, nil
}

// Get returns the player's membership of a room
func (l *Ledger) Get(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Membership, error) {
	membership, err := l.storage.GetMembership(ctx, code, playerID)
	if errors.Is(err, model.ErrMembershipNotFound) {
		return nil, model.ErrNotInRoom
	}
	return membership, err
}

// RequireActive returns ErrNotInRoom unless the player is an active member
func (l *Ledger) RequireActive(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Membership, error) {
	membership, err := l.Get(ctx, code, playerID)
	if err != nil {
		return nil, err
	}
	if !membership.IsActive {
		return nil, model.ErrNotInRoom
	}
	return membership, nil
}

// ActiveRooms returns the codes of the rooms the player is active in, in
// join order
func (l *Ledger) ActiveRooms(ctx context.Context, playerID model.PlayerID) ([]model.RoomCode, error) {
	memberships, err := l.storage.GetMembershipsForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(memberships, func(m *model.Membership, _ int) (model.RoomCode, bool) {
		return m.RoomID, m.IsActive
	}), nil
}

// CountActive returns the number of active members of a room
func (l *Ledger) CountActive(ctx context.Context, code model.RoomCode) (int, error) {
	members, err := l.storage.GetMembershipsForRoom(ctx, code)
	if err != nil {
		return 0, err
	}
	return lo.CountBy(members, func(m *model.Membership) bool { return m.IsActive }), nil
}
