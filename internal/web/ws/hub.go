package ws

import (
	"log/slog"
	"sync"

	"github.com/mcoot/scanogram/internal/model"
)

// envelope is one operation on a hub's queue: a frame to broadcast, or a
// connection to add or remove. Connections whose session matches except are
// skipped by a broadcast.
type envelope struct {
	frame  []byte
	except model.SessionID

	register   Conn
	unregister model.SessionID
	applied    chan struct{}
}

// Hub fans frames out to one group of connections. Membership changes and
// deliveries share one queue drained by the hub's own goroutine, so frames
// reach each connection in the order they were broadcast, and a connection
// only receives frames queued after it was registered.
type Hub struct {
	name   string
	conns  map[model.SessionID]Conn
	logger *slog.Logger

	queue     chan envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(name string, logger *slog.Logger) *Hub {
	return &Hub{
		name:   name,
		conns:  make(map[model.SessionID]Conn),
		logger: logger.With(slog.String("hub", name)),
		queue:  make(chan envelope, 256),
		done:   make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Debug("ws hub started")
	for {
		select {
		case env := <-h.queue:
			switch {
			case env.register != nil:
				h.conns[env.register.SessionID()] = env.register
				close(env.applied)
				h.logger.Debug("ws conn registered",
					slog.String("session_id", string(env.register.SessionID())),
					slog.Int("total_conns", len(h.conns)))

			case env.unregister != "":
				delete(h.conns, env.unregister)
				close(env.applied)
				h.logger.Debug("ws conn unregistered",
					slog.String("session_id", string(env.unregister)),
					slog.Int("total_conns", len(h.conns)))

			default:
				h.deliver(env)
			}

		case <-h.done:
			h.logger.Debug("ws hub stopped", slog.Int("detached_conns", len(h.conns)))
			clear(h.conns)
			return
		}
	}
}

func (h *Hub) deliver(env envelope) {
	dropped := 0
	for id, conn := range h.conns {
		if id == env.except {
			continue
		}
		if !conn.Deliver(env.frame) {
			dropped++
			h.logger.Warn("ws frame dropped",
				slog.String("session_id", string(id)))
		}
	}
	if dropped > 0 {
		h.logger.Warn("ws broadcast partial failure", slog.Int("dropped", dropped))
	}
}

// enqueue puts a membership change on the queue and waits until the hub has
// applied it
func (h *Hub) enqueue(env envelope) {
	env.applied = make(chan struct{})
	select {
	case h.queue <- env:
	case <-h.done:
		return
	}
	select {
	case <-env.applied:
	case <-h.done:
	}
}

// Register adds a connection. Frames queued before Register are not
// delivered to it; every later broadcast is.
func (h *Hub) Register(conn Conn) {
	h.enqueue(envelope{register: conn})
}

// Unregister removes a connection. Connections are never closed by the hub.
func (h *Hub) Unregister(id model.SessionID) {
	h.enqueue(envelope{unregister: id})
}

// Broadcast queues a frame for every connection
func (h *Hub) Broadcast(frame []byte) {
	h.BroadcastExcept(frame, "")
}

// BroadcastExcept queues a frame for every connection except one
func (h *Hub) BroadcastExcept(frame []byte, except model.SessionID) {
	select {
	case h.queue <- envelope{frame: frame, except: except}:
	case <-h.done:
	}
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HubManager owns one hub per room plus a lobby hub that every connection
// joins, used for app-wide broadcasts.
type HubManager struct {
	mu      sync.Mutex
	lobby   *Hub
	rooms   map[model.RoomCode]*Hub
	members map[model.RoomCode]map[model.SessionID]struct{}
	joined  map[model.SessionID]map[model.RoomCode]struct{}
	logger  *slog.Logger
}

// NewHubManager creates a new HubManager and starts its lobby hub
func NewHubManager(logger *slog.Logger) *HubManager {
	logger = logger.With(slog.String("component", "ws"))
	m := &HubManager{
		lobby:   NewHub("lobby", logger),
		rooms:   make(map[model.RoomCode]*Hub),
		members: make(map[model.RoomCode]map[model.SessionID]struct{}),
		joined:  make(map[model.SessionID]map[model.RoomCode]struct{}),
		logger:  logger,
	}
	go m.lobby.Run()
	return m
}

// Attach adds a connection to the lobby hub
func (m *HubManager) Attach(conn Conn) {
	m.lobby.Register(conn)
}

// Join adds a connection to a room's hub, creating the hub if needed
func (m *HubManager) Join(code model.RoomCode, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.rooms[code]
	if !ok {
		hub = NewHub(string(code), m.logger)
		m.rooms[code] = hub
		m.members[code] = make(map[model.SessionID]struct{})
		go hub.Run()
	}

	id := conn.SessionID()
	m.members[code][id] = struct{}{}
	if m.joined[id] == nil {
		m.joined[id] = make(map[model.RoomCode]struct{})
	}
	m.joined[id][code] = struct{}{}
	hub.Register(conn)
}

// Leave removes a connection from a room's hub. The hub is stopped once it
// has no connections.
func (m *HubManager) Leave(code model.RoomCode, id model.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(code, id)
}

// Detach removes a connection from the lobby and every room hub
func (m *HubManager) Detach(id model.SessionID) {
	m.mu.Lock()
	for code := range m.joined[id] {
		m.leaveLocked(code, id)
	}
	delete(m.joined, id)
	m.mu.Unlock()

	m.lobby.Unregister(id)
}

func (m *HubManager) leaveLocked(code model.RoomCode, id model.SessionID) {
	hub, ok := m.rooms[code]
	if !ok {
		return
	}
	hub.Unregister(id)
	delete(m.members[code], id)
	if rooms, ok := m.joined[id]; ok {
		delete(rooms, code)
	}
	if len(m.members[code]) == 0 {
		hub.Close()
		delete(m.rooms, code)
		delete(m.members, code)
	}
}

// Publish broadcasts an event to a room, skipping the except session if set
func (m *HubManager) Publish(code model.RoomCode, event model.EventName, data any, except model.SessionID) error {
	frame, err := Encode(event, data, nil)
	if err != nil {
		return err
	}

	m.mu.Lock()
	hub, ok := m.rooms[code]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	hub.BroadcastExcept(frame, except)
	return nil
}

// PublishAll broadcasts an event to every attached connection
func (m *HubManager) PublishAll(event model.EventName, data any) error {
	frame, err := Encode(event, data, nil)
	if err != nil {
		return err
	}
	m.lobby.Broadcast(frame)
	return nil
}

// RoomMembers returns the sessions currently joined to a room's hub
func (m *HubManager) RoomMembers(code model.RoomCode) []model.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]model.SessionID, 0, len(m.members[code]))
	for id := range m.members[code] {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount returns the number of rooms with at least one joined connection
func (m *HubManager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Close stops every hub
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, hub := range m.rooms {
		hub.Close()
		delete(m.rooms, code)
		delete(m.members, code)
	}
	clear(m.joined)
	m.lobby.Close()
}
