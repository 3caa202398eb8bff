package model

import "time"

// SessionID identifies one live connection
type SessionID string

// Session binds a live connection to the player and device it resolved to.
// Every inbound event is handled against the session it arrived on.
type Session struct {
	ID          SessionID
	PlayerID    PlayerID
	DeviceID    DeviceID
	ConnectedAt time.Time
}
