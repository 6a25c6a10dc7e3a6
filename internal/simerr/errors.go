// Package simerr defines the error-kind taxonomy surfaced by the session
// runtime. Every error the core returns to a caller wraps one of these
// sentinels so callers can discriminate with errors.Is instead of string
// matching, mirroring the *ValidationError/*SerializationError approach the
// gateway took for its own protocol-layer errors.
package simerr

import "errors"

var (
	// ErrFraming is returned when an inbound byte stream is not a valid
	// OCPP-J array frame.
	ErrFraming = errors.New("framing error")

	// ErrUnknownFrameType is returned when the decoded message type id is
	// not 2, 3, or 4.
	ErrUnknownFrameType = errors.New("unknown frame type")

	// ErrUnknownAction is returned when a CALL names an action with no
	// registered handler.
	ErrUnknownAction = errors.New("unknown action")

	// ErrValidation is returned when a CALL payload fails its handler's
	// validate step.
	ErrValidation = errors.New("validation error")

	// ErrInternal wraps a handler panic or unexpected error.
	ErrInternal = errors.New("internal error")

	// ErrCallTimeout is delivered to a pending-call waiter whose deadline
	// elapsed with no matching CALLRESULT/CALLERROR.
	ErrCallTimeout = errors.New("call timeout")

	// ErrTooManyPending is returned by SendCall when the pending registry
	// is at capacity.
	ErrTooManyPending = errors.New("too many pending calls")

	// ErrDuplicateMessageID is returned when a CALL id collides with a
	// still-pending entry.
	ErrDuplicateMessageID = errors.New("duplicate message id")

	// ErrHandshakeFailed is returned when the WebSocket handshake fails or
	// the CSMS selects a subprotocol other than ocpp1.6.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrSocketClosed marks a session's socket closing, intentionally or
	// not.
	ErrSocketClosed = errors.New("socket closed")

	// ErrBusy is returned when a session's inbox is full.
	ErrBusy = errors.New("session busy")

	// ErrCancelled is returned to callers of in-flight operations aborted
	// by session close.
	ErrCancelled = errors.New("operation cancelled")

	// ErrSessionNotFound is returned by pool operations addressing an
	// unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPoolBusy is returned by StartBatch when the memory-floor heuristic
	// is tripped or a batch is already running.
	ErrPoolBusy = errors.New("pool refusing batch")
)

// Kind is a stable string identifier for an error sentinel, used in log
// fields and externally published events where a Go error value can't
// travel (e.g. across the Kafka event sink).
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrFraming):
		return "FramingError"
	case errors.Is(err, ErrUnknownFrameType):
		return "UnknownFrameType"
	case errors.Is(err, ErrUnknownAction):
		return "UnknownAction"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrInternal):
		return "InternalError"
	case errors.Is(err, ErrCallTimeout):
		return "CallTimeout"
	case errors.Is(err, ErrTooManyPending):
		return "TooManyPending"
	case errors.Is(err, ErrDuplicateMessageID):
		return "DuplicateMessageId"
	case errors.Is(err, ErrHandshakeFailed):
		return "HandshakeFailed"
	case errors.Is(err, ErrSocketClosed):
		return "SocketClosed"
	case errors.Is(err, ErrBusy):
		return "Busy"
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrPoolBusy):
		return "PoolBusy"
	default:
		return "Unknown"
	}
}
