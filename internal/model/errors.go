package model

import "errors"

// Common errors used across the application
var (
	// Identity errors
	ErrPlayerNotFound  = errors.New("player not found")
	ErrUnauthenticated = errors.New("connection has no resolved player")
	ErrSessionEvicted  = errors.New("session was replaced by a newer connection")

	// Room errors
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrInvalidConfig      = errors.New("invalid room configuration")
	ErrNotInRoom          = errors.New("player is not an active member of the room")
	ErrNotAdmin           = errors.New("player is not the room admin")
	ErrGameAlreadyStarted = errors.New("game has already started")
	ErrGameNotStarted     = errors.New("game has not started")
	ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")

	// Membership errors
	ErrMembershipNotFound = errors.New("membership not found")

	// Message errors
	ErrEmptyMessage   = errors.New("message is empty")
	ErrInvalidMessage = errors.New("message is invalid")

	// Transport errors
	ErrInvalidEvent = errors.New("invalid event")
)

// Error codes carried in error event payloads
const (
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodePlayerNotFound     = "PLAYER_NOT_FOUND"
	CodeRoomFull           = "ROOM_FULL"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeSessionReplaced    = "SESSION_REPLACED"
	CodeNotInRoom          = "NOT_IN_ROOM"
	CodeNotAdmin           = "NOT_ADMIN"
	CodeGameAlreadyStarted = "GAME_ALREADY_STARTED"
	CodeGameNotStarted     = "GAME_NOT_STARTED"
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeInvalidEvent       = "INVALID_EVENT"
	CodeInternal           = "INTERNAL_ERROR"
)

// Reason converts an error into the payload of an error event. Unknown errors
// are reported as internal without leaking their text.
func Reason(err error) ErrorPayload {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return ErrorPayload{Code: CodeRoomNotFound, Message: "Room not found"}
	case errors.Is(err, ErrPlayerNotFound):
		return ErrorPayload{Code: CodePlayerNotFound, Message: "Player not found"}
	case errors.Is(err, ErrRoomFull):
		return ErrorPayload{Code: CodeRoomFull, Message: "Room is full"}
	case errors.Is(err, ErrInvalidConfig):
		return ErrorPayload{Code: CodeInvalidConfig, Message: "Invalid room configuration"}
	case errors.Is(err, ErrUnauthenticated):
		return ErrorPayload{Code: CodeUnauthenticated, Message: "Not connected"}
	case errors.Is(err, ErrSessionEvicted):
		return ErrorPayload{Code: CodeSessionReplaced, Message: "Logged in from another device"}
	case errors.Is(err, ErrNotInRoom):
		return ErrorPayload{Code: CodeNotInRoom, Message: "You are not in this room"}
	case errors.Is(err, ErrNotAdmin):
		return ErrorPayload{Code: CodeNotAdmin, Message: "Only the room admin can do that"}
	case errors.Is(err, ErrGameAlreadyStarted):
		return ErrorPayload{Code: CodeGameAlreadyStarted, Message: "Game has already started"}
	case errors.Is(err, ErrGameNotStarted):
		return ErrorPayload{Code: CodeGameNotStarted, Message: "Game has not started"}
	case errors.Is(err, ErrInvalidMessage):
		return ErrorPayload{Code: CodeInvalidMessage, Message: "Message is invalid"}
	case errors.Is(err, ErrInvalidEvent):
		return ErrorPayload{Code: CodeInvalidEvent, Message: "Invalid event"}
	default:
		return ErrorPayload{Code: CodeInternal, Message: "Something went wrong"}
	}
}
