package core

import "errors"

// Error codes sent to clients.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeRoomInGame     = "room_in_game"
	ErrCodeRoomsExhausted = "rooms_exhausted"
	ErrCodeGameNotFound   = "game_not_found"
	ErrCodeGameInitFailed = "game_init_failed"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeUnsupported    = "unsupported_version"
)

var ErrRoomNotFound = errors.New("room not found")

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
