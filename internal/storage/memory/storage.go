package memory

import (
	"context"
	"sync"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

// Storage is an in-memory implementation of the storage interface. Records
// are copied on the way in and out, so callers never share mutable state
// with the store.
type Storage struct {
	mu sync.RWMutex

	players     map[model.PlayerID]model.Player
	devices     map[model.PlayerID][]model.Device
	codes       map[model.RoomCode]struct{}
	rooms       map[model.RoomCode]model.Room
	memberships map[membershipKey]model.Membership
	roomIndex   map[model.RoomCode][]model.PlayerID
	playerIndex map[model.PlayerID][]model.RoomCode
	messages    map[model.RoomCode][]model.Message
}

type membershipKey struct {
	room   model.RoomCode
	player model.PlayerID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		players:     make(map[model.PlayerID]model.Player),
		devices:     make(map[model.PlayerID][]model.Device),
		codes:       make(map[model.RoomCode]struct{}),
		rooms:       make(map[model.RoomCode]model.Room),
		memberships: make(map[membershipKey]model.Membership),
		roomIndex:   make(map[model.RoomCode][]model.PlayerID),
		playerIndex: make(map[model.PlayerID][]model.RoomCode),
		messages:    make(map[model.RoomCode][]model.Message),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ID] = *player
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return &player, nil
}

func (s *Storage) CountPlayers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players), nil
}

// Device operations

func (s *Storage) SaveDevice(ctx context.Context, device *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices := s.devices[device.PlayerID]
	for i := range devices {
		if devices[i].ID == device.ID {
			devices[i] = *device
			return nil
		}
	}
	s.devices[device.PlayerID] = append(devices, *device)
	return nil
}

func (s *Storage) GetDevices(ctx context.Context, playerID model.PlayerID) ([]*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := s.devices[playerID]
	result := make([]*model.Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, &d)
	}
	return result, nil
}

// Room operations

func (s *Storage) ReserveRoomCode(ctx context.Context, code model.RoomCode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[code]; taken {
		return false, nil
	}
	s.codes[code] = struct{}{}
	return true, nil
}

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[room.ID] = struct{}{}
	s.rooms[room.ID] = *room
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	return &room, nil
}

func (s *Storage) CountRooms(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms), nil
}

// Membership operations

func (s *Storage) SaveMembership(ctx context.Context, membership *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey{room: membership.RoomID, player: membership.PlayerID}
	if _, exists := s.memberships[key]; !exists {
		s.roomIndex[key.room] = append(s.roomIndex[key.room], key.player)
		s.playerIndex[key.player] = append(s.playerIndex[key.player], key.room)
	}
	s.memberships[key] = *membership
	return nil
}

func (s *Storage) GetMembership(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{room: code, player: playerID}]
	if !ok {
		return nil, model.ErrMembershipNotFound
	}
	return &m, nil
}

func (s *Storage) GetMembershipsForRoom(ctx context.Context, code model.RoomCode) ([]*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := s.roomIndex[code]
	result := make([]*model.Membership, 0, len(players))
	for _, playerID := range players {
		m := s.memberships[membershipKey{room: code, player: playerID}]
		result = append(result, &m)
	}
	return result, nil
}

func (s *Storage) GetMembershipsForPlayer(ctx context.Context, playerID model.PlayerID) ([]*model.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := s.playerIndex[playerID]
	result := make([]*model.Membership, 0, len(codes))
	for _, code := range codes {
		m := s.memberships[membershipKey{room: code, player: playerID}]
		result = append(result, &m)
	}
	return result, nil
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, message *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[message.RoomID] = append(s.messages[message.RoomID], *message)
	return nil
}

func (s *Storage) GetMessagesForRoom(ctx context.Context, code model.RoomCode) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.messages[code]
	result := make([]*model.Message, 0, len(messages))
	for _, m := range messages {
		result = append(result, &m)
	}
	return result, nil
}
