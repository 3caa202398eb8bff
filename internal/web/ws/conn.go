package ws

import (
	"context"

	"github.com/mcoot/scanogram/internal/model"
)

// Conn is a live connection as seen by the rest of the server. Deliver must
// not block; it reports false when the frame was dropped.
type Conn interface {
	SessionID() model.SessionID
	Deliver(frame []byte) bool
	Close()
}

// Handshake is what a client presents when it opens a connection
type Handshake struct {
	PlayerID model.PlayerID
	Device   model.DeviceDescriptor
}

// SessionHandler receives the lifecycle and inbound events of every
// connection. Handle and Disconnect are only called for sessions Connect
// returned.
type SessionHandler interface {
	Connect(ctx context.Context, conn Conn, hs Handshake) (model.Session, error)
	Handle(ctx context.Context, session model.Session, frame Frame)
	Disconnect(ctx context.Context, session model.Session)
}

// Emit encodes an event and delivers it to a single connection
func Emit(c Conn, event model.EventName, data any) bool {
	frame, err := Encode(event, data, nil)
	if err != nil {
		return false
	}
	return c.Deliver(frame)
}

// Reply answers an inbound frame. When the client asked for an ack the answer
// is an ack frame carrying the same id, otherwise it is sent as event.
func Reply(c Conn, inbound Frame, event model.EventName, data any) bool {
	if inbound.Ack == nil {
		return Emit(c, event, data)
	}
	frame, err := Encode(model.EventAck, data, inbound.Ack)
	if err != nil {
		return false
	}
	return c.Deliver(frame)
}

// EmitError sends an error event describing err
func EmitError(c Conn, err error) bool {
	return Emit(c, model.EventError, model.Reason(err))
}
