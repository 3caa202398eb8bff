package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/web/ws"
)

// DeviceDeactivator marks a player's other devices inactive when a new
// session takes over
type DeviceDeactivator interface {
	DeactivateDevices(ctx context.Context, playerID model.PlayerID, keep model.DeviceID) (int, error)
}

type entry struct {
	session model.Session
	conn    ws.Conn
}

// Registry tracks the live sessions of every player and which one is
// authoritative. Only the authoritative session may mutate state on the
// player's behalf.
type Registry struct {
	mu      sync.RWMutex
	live    map[model.PlayerID]map[model.SessionID]entry
	current map[model.PlayerID]model.SessionID

	devices DeviceDeactivator
	logger  *slog.Logger
}

// New creates an empty Registry
func New(devices DeviceDeactivator, logger *slog.Logger) *Registry {
	return &Registry{
		live:    make(map[model.PlayerID]map[model.SessionID]entry),
		current: make(map[model.PlayerID]model.SessionID),
		devices: devices,
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Register records a live session and makes it the player's authoritative
// one. The caller holds the player lock.
func (r *Registry) Register(session model.Session, conn ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.live[session.PlayerID]
	if !ok {
		sessions = make(map[model.SessionID]entry)
		r.live[session.PlayerID] = sessions
	}
	sessions[session.ID] = entry{session: session, conn: conn}
	r.current[session.PlayerID] = session.ID

	r.logger.Info("session registered",
		slog.String("player_id", string(session.PlayerID)),
		slog.String("session_id", string(session.ID)),
		slog.String("device_id", string(session.DeviceID)),
		slog.Int("live_sessions", len(sessions)))
}

// EvictOthers drops every other live session of the player. Each evicted
// connection is told why and closed, and the player's other devices are
// deactivated. The caller holds the player lock.
func (r *Registry) EvictOthers(ctx context.Context, session model.Session) ([]model.SessionID, error) {
	r.mu.Lock()
	var evicted []entry
	for id, e := range r.live[session.PlayerID] {
		if id == session.ID {
			continue
		}
		evicted = append(evicted, e)
		delete(r.live[session.PlayerID], id)
	}
	r.mu.Unlock()

	ids := make([]model.SessionID, 0, len(evicted))
	for _, e := range evicted {
		ws.EmitError(e.conn, model.ErrSessionEvicted)
		e.conn.Close()
		ids = append(ids, e.session.ID)
		r.logger.Info("session evicted",
			slog.String("player_id", string(session.PlayerID)),
			slog.String("session_id", string(e.session.ID)),
			slog.String("replaced_by", string(session.ID)))
	}

	if _, err := r.devices.DeactivateDevices(ctx, session.PlayerID, session.DeviceID); err != nil {
		return ids, err
	}
	return ids, nil
}

// Unregister removes a session. It reports whether the session was still
// registered (false for sessions already evicted) and how many live sessions
// the player has left. The caller holds the player lock.
func (r *Registry) Unregister(session model.Session) (registered bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.live[session.PlayerID]
	if _, ok := sessions[session.ID]; !ok {
		return false, len(sessions)
	}
	delete(sessions, session.ID)
	if r.current[session.PlayerID] == session.ID {
		delete(r.current, session.PlayerID)
	}
	remaining = len(sessions)
	if remaining == 0 {
		delete(r.live, session.PlayerID)
	}

	r.logger.Info("session unregistered",
		slog.String("player_id", string(session.PlayerID)),
		slog.String("session_id", string(session.ID)),
		slog.Int("live_sessions", remaining))
	return true, remaining
}

// Authorize returns ErrSessionEvicted unless session is the player's
// authoritative session. Mutating handlers call it while holding the player
// lock.
func (r *Registry) Authorize(session model.Session) error {
	if !r.IsAuthoritative(session.PlayerID, session.ID) {
		return model.ErrSessionEvicted
	}
	return nil
}

// IsAuthoritative reports whether id is the player's authoritative session
func (r *Registry) IsAuthoritative(playerID model.PlayerID, id model.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.current[playerID]
	return ok && current == id
}

// IsOnline reports whether the player has any live session
func (r *Registry) IsOnline(playerID model.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live[playerID]) > 0
}

// Conn returns the connection of a live session
func (r *Registry) Conn(session model.Session) (ws.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.live[session.PlayerID][session.ID]
	return e.conn, ok
}

// liveSessions returns the ids of the player's live sessions
func (r *Registry) liveSessions(playerID model.PlayerID) []model.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.SessionID, 0, len(r.live[playerID]))
	for id := range r.live[playerID] {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live sessions across all players
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sessions := range r.live {
		n += len(sessions)
	}
	return n
}

// CloseAll closes every live connection. The sessions stay registered until
// their transports report the disconnect.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]ws.Conn, 0, len(r.live))
	for _, sessions := range r.live {
		for _, e := range sessions {
			conns = append(conns, e.conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
	return len(conns)
}
