package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"runtime"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/web/ws"
)

// RemoteError is an error event sent by the server
type RemoteError struct {
	model.ErrorPayload
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Session is an open realtime connection to the server
type Session struct {
	conn    *websocket.Conn
	nextAck int64

	// Player is the identity the server resolved for this connection
	Player model.PopulatedPlayer
}

// CLIDevice describes this tool to the server
func CLIDevice() model.DeviceDescriptor {
	return model.DeviceDescriptor{OS: runtime.GOOS, Type: "cli", Browser: "scanogram"}
}

// Dial opens a realtime session and waits for the server to resolve the
// player. An empty playerID asks the server for a new player.
func Dial(ctx context.Context, endpoint, playerID string, device model.DeviceDescriptor) (*Session, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	if playerID != "" {
		q.Set("playerId", playerID)
	}
	deviceJSON, err := json.Marshal(device)
	if err != nil {
		return nil, err
	}
	q.Set("device", string(deviceJSON))
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect failed: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("connect failed: %w", err)
	}

	s := &Session{conn: conn}
	frame, err := s.Next(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch frame.Event {
	case model.EventPlayerConnected:
		if err := frame.Bind(&s.Player); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return s, nil
	case model.EventError:
		_ = conn.Close()
		return nil, remoteError(frame)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first event %q", frame.Event)
	}
}

func remoteError(frame ws.Frame) error {
	var payload model.ErrorPayload
	if err := frame.Bind(&payload); err != nil {
		return err
	}
	return &RemoteError{payload}
}

// Next blocks until the next frame arrives or ctx is done
func (s *Session) Next(ctx context.Context) (ws.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return ws.Frame{}, ctx.Err()
		}
		return ws.Frame{}, err
	}
	return ws.Decode(data)
}

// Send writes an event without waiting for a reply
func (s *Session) Send(event model.EventName, data any) error {
	return s.write(event, data, nil)
}

// Request writes an event asking for an acknowledgement and waits for it.
// Frames that arrive in the meantime are passed to onOther. An error event
// received while waiting fails the request.
func (s *Session) Request(ctx context.Context, event model.EventName, data any, onOther func(ws.Frame)) (json.RawMessage, error) {
	s.nextAck++
	ack := s.nextAck
	if err := s.write(event, data, &ack); err != nil {
		return nil, err
	}

	for {
		frame, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		switch {
		case frame.Event == model.EventAck && frame.Ack != nil && *frame.Ack == ack:
			return frame.Data, nil
		case frame.Event == model.EventError:
			return nil, remoteError(frame)
		case onOther != nil:
			onOther(frame)
		}
	}
}

func (s *Session) write(event model.EventName, data any, ack *int64) error {
	raw, err := ws.Encode(event, data, ack)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close ends the session cleanly
func (s *Session) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}

// openSession dials the configured server as the remembered player and
// remembers whatever id the server assigns
func openSession(ctx context.Context) (*Session, error) {
	endpoint, err := client.RealtimeURL()
	if err != nil {
		return nil, err
	}
	s, err := Dial(ctx, endpoint, cfg.PlayerID, CLIDevice())
	if err != nil {
		return nil, err
	}
	if string(s.Player.ID) != cfg.PlayerID {
		if err := cfg.SavePlayerID(string(s.Player.ID)); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to save player id: %w", err)
		}
	}
	return s, nil
}
