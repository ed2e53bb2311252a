package core

// Error codes for domain errors surfaced to clients as error frames.
const (
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeMalformedInput     = "malformed_input"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeUnauthorized       = "unauthorized"
)

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
