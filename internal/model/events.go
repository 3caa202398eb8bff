package model

import "encoding/json"

// EventName names a frame on the realtime channel
type EventName string

// Client to server events
const (
	EventCreateRoom   EventName = "createRoom"
	EventJoinRoom     EventName = "joinRoom"
	EventLeaveRoom    EventName = "leaveRoom"
	EventSendMessage  EventName = "sendMessage"
	EventStartGame    EventName = "startGame"
	EventPlayerUpdate EventName = "playerUpdate"
	EventGameWon      EventName = "gameWon"
)

// Server to client events
const (
	EventPlayerConnected  EventName = "playerConnected"
	EventPlayerRooms      EventName = "playerRooms"
	EventRoomCreated      EventName = "roomCreated"
	EventRoomJoined       EventName = "roomJoined"
	EventPlayerJoined     EventName = "playerJoined"
	EventPlayerLeft       EventName = "playerLeft"
	EventRoomUpdated      EventName = "roomUpdated"
	EventSentMessage      EventName = "sentMessage"
	EventGameStatus       EventName = "gameStatus"
	EventGameStats        EventName = "gameStats"
	EventAdminChanged     EventName = "adminChanged"
	EventPlayerDisconnect EventName = "playerDisconnect"
	EventError            EventName = "error"
	EventAck              EventName = "ack"
)

// SendMessagePayload is the body of a sendMessage event
type SendMessagePayload struct {
	RoomID  RoomCode `json:"roomId"`
	Message string   `json:"message"`
}

// PlayerUpdatePayload is the body of an inbound playerUpdate event. State is
// relayed untouched.
type PlayerUpdatePayload struct {
	RoomCode RoomCode        `json:"roomCode"`
	State    json.RawMessage `json:"state"`
}

// GameWonPayload is the body of an inbound gameWon event
type GameWonPayload struct {
	RoomCode RoomCode `json:"roomCode"`
}

// PlayerNotice announces a player arriving in or leaving a room
type PlayerNotice struct {
	RoomID     RoomCode `json:"roomId"`
	PlayerID   PlayerID `json:"playerId"`
	PlayerName string   `json:"playerName"`
	Message    string   `json:"message"`
}

// PlayerStatePayload is the body of an outbound playerUpdate event
type PlayerStatePayload struct {
	PlayerID PlayerID        `json:"playerId"`
	State    json.RawMessage `json:"state"`
}

// PlayerDisconnectPayload is the body of a playerDisconnect event
type PlayerDisconnectPayload struct {
	PlayerID PlayerID `json:"playerId"`
}

// AdminChangedPayload is the body of an adminChanged event
type AdminChangedPayload struct {
	RoomID  RoomCode `json:"roomId"`
	AdminID PlayerID `json:"adminId"`
}

// WinnerPayload is the body of an outbound gameWon event
type WinnerPayload struct {
	PlayerID   PlayerID `json:"playerId"`
	PlayerName string   `json:"playerName"`
}

// ErrorPayload is the body of an error event
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
