package tcpserver

import (
	"fmt"
	"net"
	"sync"

	"github.com/netreactor/reactorsock/buffer"
	"github.com/netreactor/reactorsock/logging"
	"github.com/netreactor/reactorsock/socket"
)

// ReceivedCallback receives bytes forwarded from the wrapped Socket's
// read callback. view is only valid for the duration of the call.
type ReceivedCallback func(view buffer.View)

// SentResultCallback reports the outcome of one Session.Send.
type SentResultCallback func(data []byte, success bool)

// ErrorCallback reports an error surfaced by the wrapped Socket.
type ErrorCallback func(err error)

// DisconnectedCallback is invoked exactly once, when the wrapped
// Socket closes.
type DisconnectedCallback func()

// Session owns one accepted connection's Socket and routes its
// callbacks through virtual dispatch points, the way original_source's
// Session class sits above a raw Socket. All user callbacks default to
// no-ops and are invoked with panics recovered and logged, never
// propagated.
type Session struct {
	id     string
	conn   *socket.Socket
	logger logging.Logger

	mu         sync.Mutex
	remoteAddr *socket.Addr

	onReceived     ReceivedCallback
	onSentResult   SentResultCallback
	onError        ErrorCallback
	onDisconnected DisconnectedCallback
}

// NewSession wraps conn, installing forwarding callbacks that route
// through the Session's own dispatch points.
func NewSession(id string, conn *socket.Socket, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NoOp{}
	}
	s := &Session{
		id:     id,
		conn:   conn,
		logger: logger,
	}
	s.SetOnReceived(nil)
	s.SetOnSentResult(nil)
	s.SetOnError(nil)
	s.SetOnDisconnected(nil)

	conn.SetOnReadCallback(func(view buffer.View, _ *socket.Addr) { s.dispatchReceived(view) })
	conn.SetOnSentResultCallback(func(data []byte, success bool) { s.dispatchSentResult(data, success) })
	conn.SetOnErrorCallback(func(err error) { s.dispatchError(err) })
	conn.SetOnClosedCallback(func() { s.dispatchClosed() })
	return s
}

// ID returns the session's identifier, "{server_id}-{accept_index}"
// for server-accepted sessions.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the cached peer address, or nil if the owning
// connection's address was never set (e.g. a Session constructed
// outside of Server.onAccept).
func (s *Session) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remoteAddr == nil {
		return nil
	}
	return &net.TCPAddr{IP: s.remoteAddr.IP, Port: s.remoteAddr.Port}
}

func (s *Session) setRemoteAddr(addr *socket.Addr) {
	s.mu.Lock()
	s.remoteAddr = addr
	s.mu.Unlock()
}

// Send forwards data to the underlying Socket, honoring its queued-send
// semantics (FIFO, single in-flight envelope).
func (s *Session) Send(data []byte) int {
	return s.conn.Send(data, true)
}

// Close forwards to the underlying Socket's Close.
func (s *Session) Close() {
	s.conn.Close()
}

func (s *Session) SetOnReceived(cb ReceivedCallback) {
	if cb == nil {
		cb = func(buffer.View) {}
	}
	s.mu.Lock()
	s.onReceived = cb
	s.mu.Unlock()
}

func (s *Session) SetOnSentResult(cb SentResultCallback) {
	if cb == nil {
		cb = func([]byte, bool) {}
	}
	s.mu.Lock()
	s.onSentResult = cb
	s.mu.Unlock()
}

func (s *Session) SetOnError(cb ErrorCallback) {
	if cb == nil {
		cb = func(error) {}
	}
	s.mu.Lock()
	s.onError = cb
	s.mu.Unlock()
}

func (s *Session) SetOnDisconnected(cb DisconnectedCallback) {
	if cb == nil {
		cb = func() {}
	}
	s.mu.Lock()
	s.onDisconnected = cb
	s.mu.Unlock()
}

func (s *Session) dispatchReceived(view buffer.View) {
	s.mu.Lock()
	cb := s.onReceived
	s.mu.Unlock()
	defer s.recoverFrom("received")
	cb(view)
}

func (s *Session) dispatchSentResult(data []byte, success bool) {
	s.mu.Lock()
	cb := s.onSentResult
	s.mu.Unlock()
	defer s.recoverFrom("sent-result")
	cb(data, success)
}

func (s *Session) dispatchError(err error) {
	s.mu.Lock()
	cb := s.onError
	s.mu.Unlock()
	defer s.recoverFrom("error")
	cb(err)
}

// dispatchClosed runs on the wrapped Socket's closed callback. It
// clears the Session's own callback fields before invoking the user's
// disconnected callback, the idiomatic-Go analogue of original_source
// explicitly unregistering the Session from the Socket to break their
// reference cycle: here it replaces the user's received, sent-result
// and error callbacks with no-ops, so late events from the Socket are
// dropped and the user's closures can be collected.
func (s *Session) dispatchClosed() {
	s.mu.Lock()
	cb := s.onDisconnected
	s.onReceived = func(buffer.View) {}
	s.onSentResult = func([]byte, bool) {}
	s.onError = func(error) {}
	s.mu.Unlock()
	defer s.recoverFrom("disconnected")
	cb()
}

func (s *Session) recoverFrom(what string) {
	if r := recover(); r != nil {
		s.logger.Error().Str("session", s.id).Log(fmt.Sprintf("%s callback panicked: %v", what, r))
	}
}
