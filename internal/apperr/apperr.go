package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies application errors so callers can decide whether a
// failure is fatal to the session, fatal to the current transfer, or
// merely worth logging.
type Kind int

const (
	// Bind means the listening port could not be acquired. Fatal to Start.
	Bind Kind = iota
	// Protocol means a malformed or unrecognized message. The session
	// logs it and keeps reading.
	Protocol
	// Transport means a socket read or write failed. Terminal for the
	// session that owns the socket.
	Transport
	// Storage means the output file could not be created or written. The
	// transfer is aborted and reported to the peer; the session survives.
	Storage
	// Incomplete means the connection ended before the declared byte
	// count arrived. The partial output is deleted.
	Incomplete
)

func (k Kind) String() string {
	switch k {
	case Bind:
		return "bind"
	case Protocol:
		return "protocol"
	case Transport:
		return "transport"
	case Storage:
		return "storage"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Error is a classified application error with an operation for context.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error. op names the failing operation, err may
// be nil when there is no underlying cause.
func New(kind Kind, op string, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// IsKind reports whether err or anything it wraps carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
