package keylock

import (
	"slices"
	"sync"

	"github.com/mcoot/scanogram/internal/model"
)

// Mutex is a family of mutexes addressed by key. Holding the lock for one key
// never blocks callers using a different key. Entries are created on demand
// and dropped once nothing holds or waits on them.
type Mutex[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty keyed mutex
func New[K comparable]() *Mutex[K] {
	return &Mutex[K]{entries: make(map[K]*entry)}
}

// Lock blocks until the lock for key is held and returns the function that
// releases it. The release function must be called exactly once.
func (m *Mutex[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
}

// Len returns the number of keys currently held or waited on
func (m *Mutex[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Domains holds the two lock domains handlers serialize on: one lock per room
// and one per player. When both are needed the room lock is always taken
// first.
type Domains struct {
	rooms   *Mutex[model.RoomCode]
	players *Mutex[model.PlayerID]
}

// NewDomains creates empty room and player lock domains
func NewDomains() *Domains {
	return &Domains{
		rooms:   New[model.RoomCode](),
		players: New[model.PlayerID](),
	}
}

// Room locks a single room
func (d *Domains) Room(code model.RoomCode) func() {
	return d.rooms.Lock(code)
}

// Rooms locks several rooms in sorted order and releases them in reverse.
// Duplicate codes are locked once.
func (d *Domains) Rooms(codes []model.RoomCode) func() {
	sorted := slices.Clone(codes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, code := range sorted {
		unlocks = append(unlocks, d.rooms.Lock(code))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Player locks a single player
func (d *Domains) Player(id model.PlayerID) func() {
	return d.players.Lock(id)
}

// RoomAndPlayer locks the room and then the player, releasing in reverse order
func (d *Domains) RoomAndPlayer(code model.RoomCode, id model.PlayerID) func() {
	unlockRoom := d.rooms.Lock(code)
	unlockPlayer := d.players.Lock(id)
	return func() {
		unlockPlayer()
		unlockRoom()
	}
}

// Held reports how many room and player keys are currently in use
func (d *Domains) Held() (rooms, players int) {
	return d.rooms.Len(), d.players.Len()
}
