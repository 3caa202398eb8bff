package model

import (
	"slices"
	"time"
)

// RoomCode is the short human-typeable identifier for a room
type RoomCode string

// RoomConfig holds the settings a creator chooses for a room
type RoomConfig struct {
	Name       string `json:"name" validate:"required,max=64"`
	MaxPlayers int    `json:"maxPlayers" validate:"min=2"`
}

// Room is a named gathering place. Rooms are never deleted.
type Room struct {
	ID            RoomCode  `json:"id"`
	Name          string    `json:"name"`
	MaxPlayers    int       `json:"maxPlayers"`
	AdminID       PlayerID  `json:"adminId"`
	IsGameStarted bool      `json:"isGameStarted"`
	WinnerID      PlayerID  `json:"winnerId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Membership records that a player belongs to a room. There is at most one
// membership per (room, player) pair; leaving flips IsActive rather than
// deleting the record.
type Membership struct {
	RoomID     RoomCode  `json:"roomId"`
	PlayerID   PlayerID  `json:"playerId"`
	PlayerName string    `json:"playerName"`
	IsActive   bool      `json:"isActive"`
	IsAdmin    bool      `json:"isAdmin"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Message is a chat message posted to a room
type Message struct {
	ID         string    `json:"id"`
	RoomID     RoomCode  `json:"roomId"`
	PlayerID   PlayerID  `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Text       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PopulatedRoom is the denormalized view of a room sent to clients
type PopulatedRoom struct {
	Room
	RoomMemberships []Membership `json:"roomMemberships"`
	Messages        []Message    `json:"messages"`
}

// Member returns the membership for the given player, or nil if none
func (r *PopulatedRoom) Member(playerID PlayerID) *Membership {
	i := slices.IndexFunc(r.RoomMemberships, func(m Membership) bool {
		return m.PlayerID == playerID
	})
	if i < 0 {
		return nil
	}
	return &r.RoomMemberships[i]
}

// Admin returns the admin's membership, or nil if none
func (r *PopulatedRoom) Admin() *Membership {
	return r.Member(r.AdminID)
}

// ActiveCount returns the number of active memberships
func (r *PopulatedRoom) ActiveCount() int {
	n := 0
	for _, m := range r.RoomMemberships {
		if m.IsActive {
			n++
		}
	}
	return n
}

// AppOverview holds the global counters broadcast to every connection
type AppOverview struct {
	TotalRooms   int `json:"totalRooms"`
	TotalPlayers int `json:"totalPlayers"`
}
