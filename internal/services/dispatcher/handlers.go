package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/services/directory"
	"github.com/mcoot/scanogram/internal/services/ledger"
	"github.com/mcoot/scanogram/internal/web/ws"
)

func bindCode(frame ws.Frame) (model.RoomCode, error) {
	var raw string
	if err := frame.Bind(&raw); err != nil {
		return "", err
	}
	code := directory.NormalizeCode(raw)
	if code == "" {
		return "", fmt.Errorf("%w: missing room code", model.ErrInvalidEvent)
	}
	return code, nil
}

func (d *Dispatcher) createRoom(ctx context.Context, session model.Session, conn ws.Conn, frame ws.Frame) error {
	var cfg model.RoomConfig
	if err := frame.Bind(&cfg); err != nil {
		return err
	}
	if err := d.Rooms.Validate(cfg); err != nil {
		return err
	}

	code, err := d.allocateCode(ctx, session)
	if err != nil {
		return err
	}

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	room, err := d.Rooms.Create(ctx, code, cfg, session.PlayerID)
	if err != nil {
		return err
	}
	if _, _, err := d.Ledger.Join(ctx, code, session.PlayerID); err != nil {
		return err
	}

	d.Hubs.Join(code, conn)
	ws.Reply(conn, frame, model.EventRoomCreated, code)

	d.sessionLogger(session).Info("room created",
		slog.String("room", string(code)),
		slog.Int("max_players", room.MaxPlayers))
	return d.publishRoom(ctx, code)
}

// allocateCode reserves a room code for an authoritative session. The room
// lock for a code cannot be taken before the code exists, so authority is
// checked under the player lock here and again once both locks are held.
func (d *Dispatcher) allocateCode(ctx context.Context, session model.Session) (model.RoomCode, error) {
	unlock := d.Locks.Player(session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return "", err
	}
	return d.Rooms.AllocateCode(ctx)
}

func (d *Dispatcher) joinRoom(ctx context.Context, session model.Session, conn ws.Conn, frame ws.Frame) error {
	code, err := bindCode(frame)
	if err != nil {
		return err
	}

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	room, err := d.Rooms.Get(ctx, code)
	if err != nil {
		return err
	}
	membership, res, err := d.Ledger.Join(ctx, code, session.PlayerID)
	if err != nil {
		return err
	}

	d.Hubs.Join(code, conn)
	ws.Reply(conn, frame, model.EventRoomJoined, code)

	if res != model.ResolutionUnchanged {
		d.publish(code, model.EventPlayerJoined, model.PlayerNotice{
			RoomID:     code,
			PlayerID:   session.PlayerID,
			PlayerName: membership.PlayerName,
			Message:    membership.PlayerName + " joined the room",
		}, session.ID)
	}
	if membership.IsAdmin && room.AdminID != session.PlayerID {
		d.publish(code, model.EventAdminChanged, model.AdminChangedPayload{
			RoomID:  code,
			AdminID: session.PlayerID,
		}, "")
	}

	d.sessionLogger(session).Info("joined room",
		slog.String("room", string(code)),
		slog.String("membership", res.String()))
	return d.publishRoom(ctx, code)
}

func (d *Dispatcher) leaveRoom(ctx context.Context, session model.Session, conn ws.Conn, frame ws.Frame) error {
	code, err := bindCode(frame)
	if err != nil {
		return err
	}

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	departure, err := d.Ledger.Leave(ctx, code, session.PlayerID)
	if err != nil {
		return err
	}

	d.Hubs.Leave(code, session.ID)
	if frame.Ack != nil {
		ws.Reply(conn, frame, model.EventLeaveRoom, code)
	}

	d.publish(code, model.EventPlayerLeft, model.PlayerNotice{
		RoomID:     code,
		PlayerID:   session.PlayerID,
		PlayerName: departure.Membership.PlayerName,
		Message:    departure.Membership.PlayerName + " left the room",
	}, "")
	d.publishAdminChange(code, departure)

	d.sessionLogger(session).Info("left room", slog.String("room", string(code)))
	return d.publishRoom(ctx, code)
}

func (d *Dispatcher) sendMessage(ctx context.Context, session model.Session, conn ws.Conn, frame ws.Frame) error {
	var payload model.SendMessagePayload
	if err := frame.Bind(&payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.Message) == "" {
		return model.ErrEmptyMessage
	}
	code := directory.NormalizeCode(string(payload.RoomID))

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	message, err := d.Chat.Append(ctx, code, session.PlayerID, payload.Message)
	if err != nil {
		return err
	}

	d.publish(code, model.EventSentMessage, message, "")
	if frame.Ack != nil {
		ws.Reply(conn, frame, model.EventSentMessage, message.ID)
	}
	return nil
}

func (d *Dispatcher) startGame(ctx context.Context, session model.Session, conn ws.Conn, frame ws.Frame) error {
	code, err := bindCode(frame)
	if err != nil {
		return err
	}

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	if _, err := d.Ledger.RequireActive(ctx, code, session.PlayerID); err != nil {
		return err
	}
	if _, err := d.Rooms.StartGame(ctx, code, session.PlayerID); err != nil {
		return err
	}

	d.publish(code, model.EventGameStatus, true, "")
	if frame.Ack != nil {
		ws.Reply(conn, frame, model.EventGameStatus, true)
	}

	d.sessionLogger(session).Info("game started", slog.String("room", string(code)))
	return d.publishRoom(ctx, code)
}

// playerUpdate relays opaque game state to the rest of the room. Nothing is
// stored.
func (d *Dispatcher) playerUpdate(ctx context.Context, session model.Session, frame ws.Frame) error {
	var payload model.PlayerUpdatePayload
	if err := frame.Bind(&payload); err != nil {
		return err
	}
	code := directory.NormalizeCode(string(payload.RoomCode))

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	if _, err := d.Ledger.RequireActive(ctx, code, session.PlayerID); err != nil {
		return err
	}
	room, err := d.Rooms.Get(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsGameStarted {
		return model.ErrGameNotStarted
	}

	d.publish(code, model.EventPlayerUpdate, model.PlayerStatePayload{
		PlayerID: session.PlayerID,
		State:    payload.State,
	}, session.ID)
	return nil
}

func (d *Dispatcher) gameWon(ctx context.Context, session model.Session, conn ws.Conn, frame ws.Frame) error {
	var payload model.GameWonPayload
	if err := frame.Bind(&payload); err != nil {
		return err
	}
	code := directory.NormalizeCode(string(payload.RoomCode))

	unlock := d.Locks.RoomAndPlayer(code, session.PlayerID)
	defer unlock()

	if err := d.Registry.Authorize(session); err != nil {
		return err
	}
	membership, err := d.Ledger.RequireActive(ctx, code, session.PlayerID)
	if err != nil {
		return err
	}
	room, recorded, err := d.Rooms.RecordWinner(ctx, code, session.PlayerID)
	if err != nil {
		return err
	}
	if frame.Ack != nil {
		ws.Reply(conn, frame, model.EventGameWon, room.WinnerID)
	}
	if !recorded {
		return nil
	}

	d.publish(code, model.EventGameWon, model.WinnerPayload{
		PlayerID:   session.PlayerID,
		PlayerName: membership.PlayerName,
	}, "")

	d.sessionLogger(session).Info("game won", slog.String("room", string(code)))
	return d.publishRoom(ctx, code)
}

func (d *Dispatcher) publish(code model.RoomCode, event model.EventName, data any, except model.SessionID) {
	if err := d.Hubs.Publish(code, event, data, except); err != nil {
		d.logger.Error("failed to publish event",
			slog.String("room", string(code)),
			slog.String("event", string(event)),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) publishAdminChange(code model.RoomCode, departure *ledger.Departure) {
	if departure.NewAdmin == nil {
		return
	}
	d.publish(code, model.EventAdminChanged, model.AdminChangedPayload{
		RoomID:  code,
		AdminID: departure.NewAdmin.PlayerID,
	}, "")
}

// publishRoom broadcasts the room's current snapshot to its members
func (d *Dispatcher) publishRoom(ctx context.Context, code model.RoomCode) error {
	room, err := d.Snapshots.Room(ctx, code)
	if err != nil {
		return err
	}
	d.publish(code, model.EventRoomUpdated, room, "")
	return nil
}

// publishOverview broadcasts the app-wide totals. Snapshots are taken and
// queued one at a time, so the last gameStats every client sees is the newest.
func (d *Dispatcher) publishOverview(ctx context.Context) {
	d.overviewMu.Lock()
	defer d.overviewMu.Unlock()

	overview, err := d.Snapshots.Overview(ctx)
	if err != nil {
		d.logger.Error("failed to build overview", slog.String("error", err.Error()))
		return
	}
	if err := d.Hubs.PublishAll(model.EventGameStats, overview); err != nil {
		d.logger.Error("failed to publish overview", slog.String("error", err.Error()))
	}
}
