package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mcoot/scanogram/internal/dependencies/clock"
	"github.com/mcoot/scanogram/internal/dependencies/keylock"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/services/chat"
	"github.com/mcoot/scanogram/internal/services/directory"
	"github.com/mcoot/scanogram/internal/services/identity"
	"github.com/mcoot/scanogram/internal/services/ledger"
	"github.com/mcoot/scanogram/internal/services/registry"
	"github.com/mcoot/scanogram/internal/services/snapshot"
	"github.com/mcoot/scanogram/internal/web/ws"
)

// Components are the services the dispatcher coordinates
type Components struct {
	Locks     *keylock.Domains
	Identity  *identity.Service
	Registry  *registry.Registry
	Rooms     *directory.Directory
	Ledger    *ledger.Ledger
	Chat      *chat.Log
	Snapshots *snapshot.Builder
	Hubs      *ws.HubManager
}

// Dispatcher turns connection lifecycle and inbound events into service
// calls and broadcasts.
//
// Each handler takes the room lock and then the player lock, checks that the
// session is still authoritative, mutates state, queues its broadcasts on
// the room hub and only then unlocks. Queuing under the room lock fixes the
// order every member of the room observes.
type Dispatcher struct {
	Components
	clock    clock.Clock
	validate *validator.Validate
	logger   *slog.Logger

	// overviewMu orders overview snapshots with their broadcasts
	overviewMu sync.Mutex
}

// Ensure Dispatcher implements ws.SessionHandler
var _ ws.SessionHandler = (*Dispatcher)(nil)

// New creates a new Dispatcher
func New(c Components, clock clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Components: c,
		clock:      clock,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With(slog.String("component", "dispatcher")),
	}
}

func (d *Dispatcher) sessionLogger(session model.Session) *slog.Logger {
	return d.logger.With(
		slog.String("session_id", string(session.ID)),
		slog.String("player_id", string(session.PlayerID)))
}

// Connect resolves the connecting client to a player and device, makes the
// new session authoritative (evicting any other), and sends the client its
// player record and rooms.
func (d *Dispatcher) Connect(ctx context.Context, conn ws.Conn, hs ws.Handshake) (model.Session, error) {
	if err := d.validate.Struct(hs.Device); err != nil {
		d.logger.Warn("ignoring invalid device descriptor",
			slog.String("session_id", string(conn.SessionID())),
			slog.String("error", err.Error()))
		hs.Device = model.DeviceDescriptor{}
	}

	session, err := d.resolveSession(ctx, conn, hs)
	if err != nil {
		return model.Session{}, err
	}
	logger := d.sessionLogger(session)

	// The connection is in no hub yet, so this is the first frame it gets
	player, err := d.Snapshots.Player(ctx, session.PlayerID)
	if err != nil {
		d.releaseSession(ctx, session)
		return model.Session{}, err
	}
	ws.Emit(conn, model.EventPlayerConnected, player)

	// A session that takes over from another resumes the rooms it is still
	// active in
	active, err := d.Ledger.ActiveRooms(ctx, session.PlayerID)
	if err != nil {
		logger.Error("failed to load active rooms", slog.String("error", err.Error()))
	}
	d.resumeRooms(ctx, session, conn, active)

	d.Hubs.Attach(conn)
	d.publishOverview(ctx)
	return session, nil
}

// resumeRooms sends the player's rooms and then joins the hubs of the active
// ones. The room locks are held throughout, so no room broadcast can reach the
// connection ahead of the snapshot.
func (d *Dispatcher) resumeRooms(ctx context.Context, session model.Session, conn ws.Conn, active []model.RoomCode) {
	unlock := d.Locks.Rooms(active)
	defer unlock()

	rooms, err := d.Snapshots.PlayerRooms(ctx, session.PlayerID)
	if err != nil {
		d.sessionLogger(session).Error("failed to build player rooms", slog.String("error", err.Error()))
		rooms = []*model.PopulatedRoom{}
	}
	ws.Emit(conn, model.EventPlayerRooms, rooms)

	for _, code := range active {
		d.Hubs.Join(code, conn)
	}
}

// resolveSession runs identity resolution and registration under the player
// lock
func (d *Dispatcher) resolveSession(ctx context.Context, conn ws.Conn, hs ws.Handshake) (model.Session, error) {
	unlock := func() {}
	if hs.PlayerID != "" {
		unlock = d.Locks.Player(hs.PlayerID)
	}
	defer func() { unlock() }()

	player, playerRes, err := d.Identity.ResolvePlayer(ctx, hs.PlayerID)
	if err != nil {
		return model.Session{}, fmt.Errorf("resolve player: %w", err)
	}
	if player.ID != hs.PlayerID {
		unlock()
		unlock = d.Locks.Player(player.ID)
	}

	device, deviceRes, err := d.Identity.ResolveDevice(ctx, player.ID, hs.Device)
	if err != nil {
		return model.Session{}, fmt.Errorf("resolve device: %w", err)
	}

	session := model.Session{
		ID:          conn.SessionID(),
		PlayerID:    player.ID,
		DeviceID:    device.ID,
		ConnectedAt: d.clock.Now(),
	}
	d.Registry.Register(session, conn)

	evicted, err := d.Registry.EvictOthers(ctx, session)
	if err != nil {
		d.Registry.Unregister(session)
		return model.Session{}, fmt.Errorf("evict sessions: %w", err)
	}

	d.sessionLogger(session).Info("player connected",
		slog.String("player", playerRes.String()),
		slog.String("device", deviceRes.String()),
		slog.String("device_id", string(device.ID)),
		slog.Int("evicted", len(evicted)))
	return session, nil
}

// Disconnect removes the session. When it was the player's last live
// session the player goes offline and every active membership is degraded.
func (d *Dispatcher) Disconnect(ctx context.Context, session model.Session) {
	d.Hubs.Detach(session.ID)

	if !d.releaseSession(ctx, session) {
		return
	}

	logger := d.sessionLogger(session)
	rooms, err := d.Ledger.ActiveRooms(ctx, session.PlayerID)
	if err != nil {
		logger.Error("failed to load active rooms", slog.String("error", err.Error()))
		return
	}
	for _, code := range rooms {
		if err := d.degrade(ctx, session.PlayerID, code); err != nil {
			logger.Error("failed to degrade membership",
				slog.String("room", string(code)),
				slog.String("error", err.Error()))
		}
	}
	logger.Info("player disconnected", slog.Int("rooms_left", len(rooms)))

	d.publishOverview(ctx)
}

// releaseSession unregisters the session and reports whether the player is
// now fully offline
func (d *Dispatcher) releaseSession(ctx context.Context, session model.Session) bool {
	unlock := d.Locks.Player(session.PlayerID)
	defer unlock()

	registered, remaining := d.Registry.Unregister(session)
	if !registered || remaining > 0 {
		return false
	}

	logger := d.sessionLogger(session)
	if err := d.Identity.MarkOffline(ctx, session.PlayerID); err != nil {
		logger.Error("failed to mark player offline", slog.String("error", err.Error()))
	}
	if _, err := d.Identity.DeactivateDevices(ctx, session.PlayerID, ""); err != nil {
		logger.Error("failed to deactivate devices", slog.String("error", err.Error()))
	}
	return true
}

// degrade deactivates one membership of an offline player. It does nothing
// if the player has reconnected in the meantime.
func (d *Dispatcher) degrade(ctx context.Context, playerID model.PlayerID, code model.RoomCode) error {
	unlock := d.Locks.RoomAndPlayer(code, playerID)
	defer unlock()

	if d.Registry.IsOnline(playerID) {
		return nil
	}
	departure, err := d.Ledger.Degrade(ctx, code, playerID)
	if err != nil || departure == nil {
		return err
	}

	d.publish(code, model.EventPlayerLeft, model.PlayerNotice{
		RoomID:     code,
		PlayerID:   playerID,
		PlayerName: departure.Membership.PlayerName,
		Message:    departure.Membership.PlayerName + " disconnected",
	}, "")
	d.publish(code, model.EventPlayerDisconnect, model.PlayerDisconnectPayload{PlayerID: playerID}, "")
	d.publishAdminChange(code, departure)
	return d.publishRoom(ctx, code)
}

// Handle routes one inbound event. Failures are reported to the originating
// connection only.
func (d *Dispatcher) Handle(ctx context.Context, session model.Session, frame ws.Frame) {
	logger := d.sessionLogger(session).With(slog.String("event", string(frame.Event)))

	conn, ok := d.Registry.Conn(session)
	if !ok {
		logger.Info("dropping event from evicted session")
		return
	}

	var err error
	mutates := true
	switch frame.Event {
	case model.EventCreateRoom:
		err = d.createRoom(ctx, session, conn, frame)
	case model.EventJoinRoom:
		err = d.joinRoom(ctx, session, conn, frame)
	case model.EventLeaveRoom:
		err = d.leaveRoom(ctx, session, conn, frame)
	case model.EventSendMessage:
		err = d.sendMessage(ctx, session, conn, frame)
	case model.EventStartGame:
		err = d.startGame(ctx, session, conn, frame)
	case model.EventGameWon:
		err = d.gameWon(ctx, session, conn, frame)
	case model.EventPlayerUpdate:
		mutates = false
		err = d.playerUpdate(ctx, session, frame)
	default:
		err = fmt.Errorf("%w: unknown event %q", model.ErrInvalidEvent, frame.Event)
	}

	if errors.Is(err, model.ErrEmptyMessage) {
		return
	}
	if err != nil {
		reason := model.Reason(err)
		if reason.Code == model.CodeInternal {
			logger.Error("event failed", slog.String("error", err.Error()))
		} else {
			logger.Info("event rejected", slog.String("code", reason.Code), slog.String("error", err.Error()))
		}
		ws.EmitError(conn, err)
		return
	}

	if mutates {
		d.publishOverview(ctx)
	}
}
