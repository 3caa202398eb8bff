package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcoot/scanogram/internal/api/response"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/web/ws"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// EventLine is one realtime event as printed by watch
type EventLine struct {
	Time  time.Time       `json:"time"`
	Event model.EventName `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PrintEvent outputs a realtime frame. JSON output is one line per event.
func (o *Output) PrintEvent(frame ws.Frame) {
	line := EventLine{Time: time.Now(), Event: frame.Event, Data: frame.Data}
	if o.format == "json" {
		data, _ := json.Marshal(line)
		fmt.Fprintln(o.w, string(data))
		return
	}

	display := strings.ReplaceAll(string(frame.Data), "\n", " ")
	if len(display) > 100 {
		display = display[:100] + "..."
	}
	fmt.Fprintf(o.w, "[%s] %s: %s\n", line.Time.Format("15:04:05"), frame.Event, display)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.HealthResponse:
		o.printHealth(v)
	case response.StatsResponse:
		o.printStats(v)
	case model.PopulatedRoom:
		o.printRoom(v)
	case model.PopulatedPlayer:
		o.printPlayer(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printHealth(h response.HealthResponse) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Connections: %d\n", h.Connections)
	fmt.Fprintf(o.w, "Active Rooms: %d\n", h.ActiveRooms)
}

func (o *Output) printStats(s response.StatsResponse) {
	fmt.Fprintf(o.w, "Rooms: %d\n", s.TotalRooms)
	fmt.Fprintf(o.w, "Players: %d\n", s.TotalPlayers)
	fmt.Fprintf(o.w, "Connections: %d\n", s.Connections)
}

func (o *Output) printRoom(r model.PopulatedRoom) {
	fmt.Fprintf(o.w, "Room: %s (%s)\n", r.ID, r.Name)
	fmt.Fprintf(o.w, "Players: %d/%d active\n", r.ActiveCount(), r.MaxPlayers)
	state := "waiting"
	if r.IsGameStarted {
		state = "started"
	}
	fmt.Fprintf(o.w, "Game: %s\n", state)
	if r.WinnerID != "" {
		fmt.Fprintf(o.w, "Winner: %s\n", r.WinnerID)
	}

	fmt.Fprintf(o.w, "Members (%d):\n", len(r.RoomMemberships))
	for _, m := range r.RoomMemberships {
		flags := ""
		if m.IsAdmin {
			flags += " [admin]"
		}
		if !m.IsActive {
			flags += " [away]"
		}
		fmt.Fprintf(o.w, "  - %s (%s)%s\n", m.PlayerName, m.PlayerID, flags)
	}

	if len(r.Messages) > 0 {
		fmt.Fprintln(o.w, "Messages:")
		for _, m := range r.Messages {
			fmt.Fprintf(o.w, "  [%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.PlayerName, m.Text)
		}
	}
}

func (o *Output) printPlayer(p model.PopulatedPlayer) {
	status := "offline"
	if p.IsActive {
		status = "online"
	}
	fmt.Fprintf(o.w, "Player: %s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(o.w, "Status: %s\n", status)
	if current := p.ActiveDevice(); current != nil {
		fmt.Fprintf(o.w, "Current device: %s\n", current.ID)
	}
	fmt.Fprintf(o.w, "Devices (%d):\n", len(p.Devices))
	for _, d := range p.Devices {
		active := ""
		if d.IsActive {
			active = " [active]"
		}
		fmt.Fprintf(o.w, "  - %s %s/%s/%s%s\n", d.ID, d.OS, d.Type, d.Browser, active)
	}
}
