// Package tcpserver layers a listening accept loop and a Session
// abstraction on top of a single socket.Socket, the way
// original_source's tcp_server.cpp and session.h sit above socket.cpp.
package tcpserver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/netreactor/reactorsock/logging"
	"github.com/netreactor/reactorsock/poll"
	"github.com/netreactor/reactorsock/reactorerr"
	"github.com/netreactor/reactorsock/socket"
)

// SessionFactory constructs the Session wrapping a newly accepted
// connection. The default builds a plain Session.
type SessionFactory func(id string, conn *socket.Socket, logger logging.Logger) *Session

// Server owns one TcpServer Socket and hands every accepted connection
// to a Session, the way original_source's TcpServer wraps one listening
// fd and a next_session_index counter.
type Server struct {
	id      string
	pool    *poll.Pool
	logger  logging.Logger
	factory SessionFactory
	limiter *catrate.Limiter

	onNewSession func(*Session)

	mu        sync.Mutex
	listener  *socket.Socket
	running   bool
	nextIndex int64
}

// ServerOption configures a Server at construction.
type ServerOption func(*Server)

// WithLogger sets the Logger the server and every Session it creates
// write diagnostics to. The default is logging.NoOp{}.
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithSessionFactory overrides how an accepted connection is wrapped.
func WithSessionFactory(f SessionFactory) ServerOption {
	return func(s *Server) { s.factory = f }
}

// WithOnNewSession registers the callback invoked once per accepted
// connection, after its Session has been constructed and its peer
// address cached.
func WithOnNewSession(f func(*Session)) ServerOption {
	return func(s *Server) { s.onNewSession = f }
}

// WithAcceptRateLimit caps the rate of new sessions the server will
// announce, using the same sliding-window algorithm catrate.Limiter
// uses elsewhere in the pack. original_source's tcp_server.cpp has no
// such protection; when the limit is exceeded, the accepted connection
// is kept open (not dropped) and its session announcement is deferred
// until the limiter allows it, rather than rejecting the peer outright.
func WithAcceptRateLimit(rates map[time.Duration]int) ServerOption {
	return func(s *Server) { s.limiter = catrate.NewLimiter(rates) }
}

// NewServer constructs a Server identified by id, whose listener and
// every accepted connection are pinned to a Poll Thread acquired from
// pool.
func NewServer(id string, pool *poll.Pool, opts ...ServerOption) *Server {
	s := &Server{
		id:     id,
		pool:   pool,
		logger: logging.NoOp{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = func(id string, conn *socket.Socket, logger logging.Logger) *Session {
			return NewSession(id, conn, logger)
		}
	}
	if s.onNewSession == nil {
		s.onNewSession = func(*Session) {}
	}
	return s
}

// Start binds and listens on host:port, constructing the listening
// Socket and installing its accept and error callbacks. Calling Start
// twice without an intervening Stop fails with AlreadyInitialized.
func (s *Server) Start(port int, host string, backlog int) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return reactorerr.New(reactorerr.AlreadyInitialized)
	}
	s.mu.Unlock()

	listener := socket.New(s.id, s.pool.Acquire(), socket.WithLogger(s.logger))
	if err := listener.Initialize(socket.TcpServer, true); err != nil {
		return err
	}
	listener.SetOnErrorCallback(func(err error) {
		s.logger.Error().Str("server", s.id).Err(err).Log("listen socket error")
	})
	listener.SetOnAcceptCallback(s.onAccept)

	if err := listener.Bind(port, host); err != nil {
		listener.Close()
		return err
	}
	if err := listener.Listen(backlog); err != nil {
		listener.Close()
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop closes the listening socket. Already-accepted sessions are left
// running; call Session.Close on each individually.
func (s *Server) Stop() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.running = false
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
}

func (s *Server) onAccept(conn *socket.Socket, addr *socket.Addr) {
	index := atomic.AddInt64(&s.nextIndex, 1)
	id := fmt.Sprintf("%s-%d", s.id, index)

	announce := func() {
		sess := s.factory(id, conn, s.logger)
		sess.setRemoteAddr(addr)
		s.safeNewSession(sess)
	}

	if s.limiter == nil {
		announce()
		return
	}

	s.deferUntilAllowed(id, announce)
}

// deferUntilAllowed polls the limiter on a short backoff until it
// permits the next session, then runs announce. The connection's fd
// stays open and registered throughout: accept() itself already ran,
// only the session's announcement to user code is delayed, since the
// Socket API does not expose a hook to postpone accept() at the
// syscall level from this package.
func (s *Server) deferUntilAllowed(id string, announce func()) {
	next, ok := s.limiter.Allow(s.id)
	if ok {
		announce()
		return
	}
	wait := time.Until(next)
	if wait <= 0 {
		wait = time.Millisecond
	}
	s.logger.Warn().Str("server", s.id).Str("session", id).Log("accept rate limited, deferring session announcement")
	time.AfterFunc(wait, func() { s.deferUntilAllowed(id, announce) })
}

func (s *Server) safeNewSession(sess *Session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("server", s.id).Log(fmt.Sprintf("new-session callback panicked: %v", r))
		}
	}()
	s.onNewSession(sess)
}
