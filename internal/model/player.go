package model

import "time"

// PlayerID uniquely identifies a player across the system
type PlayerID string

// DeviceID identifies one device a player has connected from
type DeviceID string

// Player is a durable identity. It survives disconnects and is reused when a
// client reconnects presenting the same id.
type Player struct {
	ID         PlayerID  `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	IsActive   bool      `json:"isActive"`
}

// DeviceDescriptor is what a client reports about itself during the handshake.
// ID is optional; when it is absent a fingerprint of the other fields is used
// to recognise a returning device.
type DeviceDescriptor struct {
	ID      DeviceID `json:"id,omitempty" validate:"max=128"`
	OS      string   `json:"os" validate:"max=64"`
	Type    string   `json:"type" validate:"max=64"`
	Browser string   `json:"browser" validate:"max=64"`
}

// Device is a stored device belonging to one player. At most one device per
// player is active at a time.
type Device struct {
	ID          DeviceID  `json:"id"`
	PlayerID    PlayerID  `json:"playerId"`
	Fingerprint string    `json:"fingerprint"`
	OS          string    `json:"os"`
	Type        string    `json:"type"`
	Browser     string    `json:"browser"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	IsActive    bool      `json:"isActive"`
}

// PopulatedPlayer is a player together with its devices
type PopulatedPlayer struct {
	Player
	Devices []Device `json:"devices"`
}

// ActiveDevice returns the player's active device, or nil if none
func (p *PopulatedPlayer) ActiveDevice() *Device {
	for i := range p.Devices {
		if p.Devices[i].IsActive {
			return &p.Devices[i]
		}
	}
	return nil
}

// Resolution reports whether an upsert created a new record, brought an
// existing one back to life, or found it already live.
type Resolution int

const (
	ResolutionCreated Resolution = iota + 1
	ResolutionReactivated
	ResolutionUnchanged
)

func (r Resolution) String() string {
	switch r {
	case ResolutionCreated:
		return "created"
	case ResolutionReactivated:
		return "reactivated"
	case ResolutionUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}
