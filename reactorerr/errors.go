// Package reactorerr defines the stable, numeric error codes reactorsock
// returns from its synchronous operations, and the wrapper type that
// lets callers recover the underlying syscall error via errors.As/Is.
package reactorerr

import "fmt"

// Code is a stable, numeric error code. Values are frozen: do not
// renumber an existing constant, only append.
type Code int

const (
	Success Code = 0
	// NotImplement marks an operation intentionally left unimplemented.
	NotImplement Code = 1
	// AlreadyInitialized is returned by idempotent-guarded initializers
	// called a second time.
	AlreadyInitialized Code = 2

	SocketCreateFailed      Code = 0x00010101
	SocketBindFailed        Code = 0x00010102
	SocketConnectFailed     Code = 0x00010103
	SocketConnectInProgress Code = 0x00010104
	SocketListenFailed      Code = 0x00010105
	// SocketError is the code attached to the generic OnErrorEvent report.
	// The original source reports Success here; see DESIGN.md Open Question 2.
	SocketError Code = 0x00010106

	CreateEpollFailed       Code = 0x00010201
	AddEpollEventFailed     Code = 0x00010202
	DeleteEpollEventFailed  Code = 0x00010203
	ModifyEpollEventFailed  Code = 0x00010204

	BufferNotEnoughCapacity Code = 0x000F0102
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case NotImplement:
		return "not_implement"
	case AlreadyInitialized:
		return "already_initialized"
	case SocketCreateFailed:
		return "socket_create_failed"
	case SocketBindFailed:
		return "socket_bind_failed"
	case SocketConnectFailed:
		return "socket_connect_failed"
	case SocketConnectInProgress:
		return "socket_connect_in_progress"
	case SocketListenFailed:
		return "socket_listen_failed"
	case SocketError:
		return "socket_error"
	case CreateEpollFailed:
		return "create_epoll_failed"
	case AddEpollEventFailed:
		return "add_epoll_event_failed"
	case DeleteEpollEventFailed:
		return "delete_epoll_event_failed"
	case ModifyEpollEventFailed:
		return "modify_epoll_event_failed"
	case BufferNotEnoughCapacity:
		return "buffer_not_enough_capacity"
	default:
		return fmt.Sprintf("code(0x%x)", int(c))
	}
}

// Error wraps a Code with an optional underlying cause (typically a
// syscall.Errno), so that a caller can either switch on the stable
// Code or drill into the raw errno with errors.As.
type Error struct {
	Code  Code
	Cause error
}

// New wraps code with no cause.
func New(code Code) *Error { return &Error{Code: code} }

// Wrap wraps code around cause. If cause is nil, Wrap returns nil,
// mirroring the convention that a nil cause means "no error occurred".
func Wrap(code Code, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Code, so plain
// reactorerr.New(code) values can be used as errors.Is comparison
// targets regardless of cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
