package redis

import (
	"fmt"

	"github.com/mcoot/scanogram/internal/model"
)

// Key prefix for all scanogram data
const keyPrefix = "scanogram"

// playerKey returns the Redis key for a Player
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// playersKey returns the Redis key for the SET of all player ids
func playersKey() string {
	return fmt.Sprintf("%s:players", keyPrefix)
}

// devicesKey returns the Redis key for the HASH of a player's devices, keyed by device id
func devicesKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:devices:%s", keyPrefix, playerID)
}

// roomCodesKey returns the Redis key for the SET of every code ever claimed
func roomCodesKey() string {
	return fmt.Sprintf("%s:room_codes", keyPrefix)
}

// roomKey returns the Redis key for a Room
func roomKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, code)
}

// roomsKey returns the Redis key for the SET of all saved room codes
func roomsKey() string {
	return fmt.Sprintf("%s:rooms", keyPrefix)
}

// membershipKey returns the Redis key for a Membership
func membershipKey(code model.RoomCode, playerID model.PlayerID) string {
	return fmt.Sprintf("%s:membership:%s:%s", keyPrefix, code, playerID)
}

// roomMembersIndexKey returns the Redis key for the ZSET of player ids in a room, scored by join time
func roomMembersIndexKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:idx:room_members:%s", keyPrefix, code)
}

// playerRoomsIndexKey returns the Redis key for the ZSET of room codes a player belongs to, scored by join time
func playerRoomsIndexKey(playerID model.PlayerID) string {
	return fmt.Sprintf("%s:idx:player_rooms:%s", keyPrefix, playerID)
}

// messagesKey returns the Redis key for the LIST of messages in a room
func messagesKey(code model.RoomCode) string {
	return fmt.Sprintf("%s:messages:%s", keyPrefix, code)
}
