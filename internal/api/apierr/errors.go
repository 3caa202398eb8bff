package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/scanogram/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Codes used only by the HTTP API. Domain errors reuse the codes of the
// realtime error event.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error is reported with
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	reason := model.Reason(err)
	return &httpError{statusFor(err), APIError{reason.Code, reason.Message}}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrRoomNotFound),
		errors.Is(err, model.ErrPlayerNotFound),
		errors.Is(err, model.ErrNotInRoom):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidConfig),
		errors.Is(err, model.ErrInvalidMessage),
		errors.Is(err, model.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrSessionEvicted):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, model.ErrRoomFull),
		errors.Is(err, model.ErrGameAlreadyStarted),
		errors.Is(err, model.ErrGameNotStarted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewNotFoundError creates a not found error for unknown routes
func NewNotFoundError() error {
	return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Not found"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{model.CodeInternal, "Internal server error"}}
}
