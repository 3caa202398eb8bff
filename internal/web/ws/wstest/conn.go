// Package wstest provides an in-memory ws.Conn that records what it is sent.
package wstest

import (
	"encoding/json"
	"sync"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/web/ws"
)

// Conn records every frame delivered to it
type Conn struct {
	id model.SessionID

	mu     sync.Mutex
	frames []ws.Frame
	closed bool
}

// Ensure Conn implements ws.Conn
var _ ws.Conn = (*Conn)(nil)

// NewConn creates a recording connection with the given session id
func NewConn(id model.SessionID) *Conn {
	return &Conn{id: id}
}

func (c *Conn) SessionID() model.SessionID {
	return c.id
}

// Deliver records the frame. Frames delivered after Close are dropped.
func (c *Conn) Deliver(frame []byte) bool {
	f, err := ws.Decode(frame)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, f)
	return true
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether Close was called
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns a copy of every recorded frame
func (c *Conn) Frames() []ws.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ws.Frame(nil), c.frames...)
}

// Events returns the recorded frames with the given event name
func (c *Conn) Events(event model.EventName) []ws.Frame {
	var out []ws.Frame
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Count returns how many frames with the given event name were recorded
func (c *Conn) Count(event model.EventName) int {
	return len(c.Events(event))
}

// Last decodes the data of the most recent frame with the given event name
// into v. It reports false if there is no such frame.
func (c *Conn) Last(event model.EventName, v any) bool {
	events := c.Events(event)
	if len(events) == 0 {
		return false
	}
	if v != nil {
		if err := json.Unmarshal(events[len(events)-1].Data, v); err != nil {
			return false
		}
	}
	return true
}

// Reset forgets all recorded frames
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
