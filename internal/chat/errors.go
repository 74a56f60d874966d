package chat

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnknownUser     = errors.New("unknown user")
	ErrStorageFailure  = errors.New("storage failure")
	ErrDeliveryFailure = errors.New("delivery failure")
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrInvalidFrame    = errors.New("invalid frame")
)

// ErrorCode 错误帧中的 code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrUnknownUser):
		return "UNKNOWN_USER"
	case errors.Is(err, ErrStorageFailure):
		return "STORAGE_FAILURE"
	case errors.Is(err, ErrUnsupportedType):
		return "UNSUPPORTED_TYPE"
	case errors.Is(err, ErrInvalidFrame):
		return "INVALID_FRAME"
	default:
		return "INTERNAL"
	}
}
