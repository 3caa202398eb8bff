package ws

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/scanogram/internal/model"
)

// Frame is one message on the realtime channel, in either direction. Ack is
// set by a client that wants a direct reply; the reply echoes it.
type Frame struct {
	Event model.EventName `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

// Encode builds a wire frame. A nil data value is omitted.
func Encode(event model.EventName, data any, ack *int64) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw, Ack: ack})
}

// Decode parses a wire frame
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", model.ErrInvalidEvent, err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event name", model.ErrInvalidEvent)
	}
	return f, nil
}

// Bind unmarshals the frame's data into v
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", model.ErrInvalidEvent, f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrInvalidEvent, f.Event, err)
	}
	return nil
}
