package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, playerKey(player.ID), data, s.cfg.PlayerTTL)
	pipe.SAdd(ctx, playersKey(), string(player.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	data, err := s.client.Get(ctx, playerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}

	var player model.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) CountPlayers(ctx context.Context) (int, error) {
	return s.countLive(ctx, playersKey(), func(id string) string {
		return playerKey(model.PlayerID(id))
	})
}

// Device operations

func (s *Storage) SaveDevice(ctx context.Context, device *model.Device) error {
	data, err := json.Marshal(device)
	if err != nil {
		return err
	}

	key := devicesKey(device.PlayerID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, string(device.ID), data)
	if s.cfg.PlayerTTL > 0 {
		pipe.Expire(ctx, key, s.cfg.PlayerTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetDevices(ctx context.Context, playerID model.PlayerID) ([]*model.Device, error) {
	values, err := s.client.HGetAll(ctx, devicesKey(playerID)).Result()
	if err != nil {
		return nil, err
	}

	devices := make([]*model.Device, 0, len(values))
	for _, v := range values {
		var device model.Device
		if err := json.Unmarshal([]byte(v), &device); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}

	// Hash fields have no order
	slices.SortFunc(devices, func(a, b *model.Device) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return devices, nil
}

// Room operations

func (s *Storage) ReserveRoomCode(ctx context.Context, code model.RoomCode) (bool, error) {
	added, err := s.client.SAdd(ctx, roomCodesKey(), string(code)).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, roomKey(room.ID), data, s.cfg.RoomTTL)
	pipe.SAdd(ctx, roomsKey(), string(room.ID))
	pipe.SAdd(ctx, roomCodesKey(), string(room.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.touchRoom(ctx, room.ID)
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, err
	}

	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Storage) CountRooms(ctx context.Context) (int, error) {
	return s.countLive(ctx, roomsKey(), func(code string) string {
		return roomKey(model.RoomCode(code))
	})
}

// countLive counts the ids in an index set whose record has not expired,
// dropping the rest from the set
func (s *Storage) countLive(ctx context.Context, setKey string, recordKey func(string) string) (int, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	var expired []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			expired = append(expired, ids[i])
		}
	}
	if len(expired) > 0 {
		if err := s.client.SRem(ctx, setKey, expired...).Err(); err != nil {
			return 0, err
		}
	}
	return len(ids) - len(expired), nil
}

// touchRoom restarts the TTL of a room together with its memberships,
// member indexes and messages
func (s *Storage) touchRoom(ctx context.Context, code model.RoomCode) error {
	ttl := s.cfg.RoomTTL
	if ttl <= 0 {
		return nil
	}

	playerIDs, err := s.client.ZRange(ctx, roomMembersIndexKey(code), 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, roomKey(code), ttl)
	pipe.Expire(ctx, roomMembersIndexKey(code), ttl)
	pipe.Expire(ctx, messagesKey(code), ttl)
	for _, id := range playerIDs {
		pipe.Expire(ctx, membershipKey(code, model.PlayerID(id)), ttl)
		pipe.Expire(ctx, playerRoomsIndexKey(model.PlayerID(id)), ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Membership operations

func (s *Storage) SaveMembership(ctx context.Context, membership *model.Membership) error {
	data, err := json.Marshal(membership)
	if err != nil {
		return err
	}

	roomIdx := roomMembersIndexKey(membership.RoomID)
	playerIdx := playerRoomsIndexKey(membership.PlayerID)
	score := float64(membership.JoinedAt.UnixMicro())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, membershipKey(membership.RoomID, membership.PlayerID), data, s.cfg.RoomTTL)
	// NX keeps the original join position when a membership is re-saved
	pipe.ZAddNX(ctx, roomIdx, redis.Z{Score: score, Member: string(membership.PlayerID)})
	pipe.ZAddNX(ctx, playerIdx, redis.Z{Score: score, Member: string(membership.RoomID)})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.touchRoom(ctx, membership.RoomID)
}

func (s *Storage) GetMembership(ctx context.Context, code model.RoomCode, playerID model.PlayerID) (*model.Membership, error) {
	data, err := s.client.Get(ctx, membershipKey(code, playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrMembershipNotFound
		}
		return nil, err
	}

	var m model.Membership
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Storage) GetMembershipsForRoom(ctx context.Context, code model.RoomCode) ([]*model.Membership, error) {
	playerIDs, err := s.client.ZRange(ctx, roomMembersIndexKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		keys[i] = membershipKey(code, model.PlayerID(id))
	}
	return s.getMemberships(ctx, keys)
}

func (s *Storage) GetMembershipsForPlayer(ctx context.Context, playerID model.PlayerID) ([]*model.Membership, error) {
	codes, err := s.client.ZRange(ctx, playerRoomsIndexKey(playerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = membershipKey(model.RoomCode(code), playerID)
	}
	return s.getMemberships(ctx, keys)
}

// getMemberships loads membership records by key, skipping any that have expired
func (s *Storage) getMemberships(ctx context.Context, keys []string) ([]*model.Membership, error) {
	if len(keys) == 0 {
		return []*model.Membership{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	memberships := make([]*model.Membership, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type for %s", keys[i])
		}
		var m model.Membership
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			return nil, err
		}
		memberships = append(memberships, &m)
	}
	return memberships, nil
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, message *model.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	key := messagesKey(message.RoomID)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return err
	}
	return s.touchRoom(ctx, message.RoomID)
}

func (s *Storage) GetMessagesForRoom(ctx context.Context, code model.RoomCode) ([]*model.Message, error) {
	values, err := s.client.LRange(ctx, messagesKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]*model.Message, 0, len(values))
	for _, v := range values {
		var m model.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, nil
}
