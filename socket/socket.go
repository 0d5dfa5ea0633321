// Package socket implements the per-fd state machine: the library's
// largest component. A Socket owns exactly one fd and one Poll Thread
// affinity for its whole life, translates poll readiness into accept,
// recv, non-blocking connect-completion, and send-drain actions, and
// runs the outbound send pipeline (FIFO queue + single in-flight
// envelope + writable-interest latch) described alongside it.
package socket

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"weak"

	"golang.org/x/sys/unix"

	"github.com/netreactor/reactorsock/buffer"
	"github.com/netreactor/reactorsock/clock"
	"github.com/netreactor/reactorsock/logging"
	"github.com/netreactor/reactorsock/poll"
	"github.com/netreactor/reactorsock/reactorerr"
)

// Type is the socket family/role a Socket was initialized with.
type Type int

const (
	Invalid Type = iota
	TcpServer
	TcpClient
	Udp
)

func (t Type) String() string {
	switch t {
	case TcpServer:
		return "tcp_server"
	case TcpClient:
		return "tcp_client"
	case Udp:
		return "udp"
	default:
		return "invalid"
	}
}

// State is the socket's lifecycle position.
type State int

const (
	StateInvalid State = iota
	StateUnbound
	StateBound
	StateListening
	StateConnected
)

const (
	defaultBufSize = 256 * 1024
	defaultBacklog = 1024
)

// ReadCallback receives bytes recv'd off the wire. view borrows the
// poll thread's shared read buffer and is only valid for the duration
// of the call; retain its bytes by copying (see buffer.NewCopyBuffer).
type ReadCallback func(view buffer.View, addr *Addr)

// ErrCallback reports a terminal or advisory condition. A nil err on
// a connect callback means the connection succeeded.
type ErrCallback func(err error)

// AcceptCallback receives a newly accepted, already-Connected Socket.
type AcceptCallback func(conn *Socket, addr *Addr)

// BeforeCreateCallback constructs the Socket object for a just-accepted
// connection, before its fd is assigned. The default constructs a
// plain Socket sharing the listener's Poll Thread.
type BeforeCreateCallback func() *Socket

// SentResultCallback reports the outcome of one queued Send: true once
// every byte reached the kernel, false if the envelope was dropped by
// a fatal send error or by Close while still queued.
type SentResultCallback func(data []byte, success bool)

// ClosedCallback is invoked exactly once, synchronously from Close.
type ClosedCallback func()

// Socket is a single fd's state machine: connecting/established/
// listening/closed, plus its outbound send queue. All its I/O
// callbacks (accept/read/write/error) run on the one Poll Thread it is
// pinned to; Send and its optional inline Flush may be called from any
// goroutine.
type Socket struct {
	id         string
	pollThread *poll.Thread
	logger     logging.Logger
	sendFlags  int
	bufSize    int
	clk        clock.Clock

	self weak.Pointer[Socket]

	mu             sync.Mutex
	state          State
	socketType     Type
	fd             int
	async          bool
	connecting     bool
	connectStarted int64
	nextAcceptedID int64

	readCallback         ReadCallback
	errorCallback        ErrCallback
	acceptCallback       AcceptCallback
	beforeCreateCallback BeforeCreateCallback
	sentResultCallback   SentResultCallback
	closedCallback       ClosedCallback
	connectCallback      ErrCallback

	sendQueueMu sync.Mutex
	sendQueue   []*envelope

	sendingMu sync.Mutex
	sending   *envelope

	availableSend atomic.Bool
}

// New constructs a Socket in state Invalid, pinned to pt for its whole
// lifetime. All user callbacks default to no-ops until overridden by
// the corresponding SetOn* method.
func New(id string, pt *poll.Thread, opts ...Option) *Socket {
	s := &Socket{
		id:         id,
		pollThread: pt,
		logger:     logging.NoOp{},
		bufSize:    defaultBufSize,
		clk:        clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.self = weak.Make(s)
	s.SetOnReadCallback(nil)
	s.SetOnErrorCallback(nil)
	s.SetOnAcceptCallback(nil)
	s.SetOnBeforeCreateCallback(nil)
	s.SetOnSentResultCallback(nil)
	s.SetOnClosedCallback(nil)
	return s
}

// ID returns the socket's identifier, used for log correlation and for
// deriving accepted-connection and session ids.
func (s *Socket) ID() string { return s.id }

// Fd returns the raw file descriptor, or 0 if the socket is Invalid.
func (s *Socket) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// State returns the socket's current lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Type returns the socket's family/role.
func (s *Socket) Type() Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketType
}

func (s *Socket) SetOnReadCallback(cb ReadCallback) {
	if cb == nil {
		cb = func(buffer.View, *Addr) {}
	}
	s.mu.Lock()
	s.readCallback = cb
	s.mu.Unlock()
}

func (s *Socket) SetOnErrorCallback(cb ErrCallback) {
	if cb == nil {
		cb = func(error) {}
	}
	s.mu.Lock()
	s.errorCallback = cb
	s.mu.Unlock()
}

func (s *Socket) SetOnAcceptCallback(cb AcceptCallback) {
	if cb == nil {
		cb = func(*Socket, *Addr) {}
	}
	s.mu.Lock()
	s.acceptCallback = cb
	s.mu.Unlock()
}

func (s *Socket) SetOnBeforeCreateCallback(cb BeforeCreateCallback) {
	if cb == nil {
		cb = func() *Socket {
			s.mu.Lock()
			s.nextAcceptedID++
			childID := fmt.Sprintf("%s-%d", s.id, s.nextAcceptedID)
			s.mu.Unlock()
			return New(childID, s.pollThread, WithLogger(s.logger), WithSendFlags(s.sendFlags), WithBufferSizes(s.bufSize))
		}
	}
	s.mu.Lock()
	s.beforeCreateCallback = cb
	s.mu.Unlock()
}

func (s *Socket) SetOnSentResultCallback(cb SentResultCallback) {
	if cb == nil {
		cb = func([]byte, bool) {}
	}
	s.mu.Lock()
	s.sentResultCallback = cb
	s.mu.Unlock()
}

func (s *Socket) SetOnClosedCallback(cb ClosedCallback) {
	if cb == nil {
		cb = func() {}
	}
	s.mu.Lock()
	s.closedCallback = cb
	s.mu.Unlock()
}

// Initialize creates the underlying fd for t and applies the standard
// per-type socket options, transitioning Invalid -> Unbound.
func (s *Socket) Initialize(t Type, async bool) error {
	var domain, typ int
	switch t {
	case TcpServer, TcpClient:
		domain, typ = unix.AF_INET, unix.SOCK_STREAM
	case Udp:
		domain, typ = unix.AF_INET, unix.SOCK_DGRAM
	default:
		return reactorerr.New(reactorerr.SocketCreateFailed)
	}

	fd, err := unix.Socket(domain, typ, 0)
	if err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("create socket failed")
		return reactorerr.Wrap(reactorerr.SocketCreateFailed, err)
	}
	if err := applyCreateOptions(fd, t, async, s.bufSize); err != nil {
		_ = unix.Close(fd)
		s.logger.Error().Str("socket", s.id).Err(err).Log("configure socket failed")
		return reactorerr.Wrap(reactorerr.SocketCreateFailed, err)
	}

	s.mu.Lock()
	s.fd = fd
	s.socketType = t
	s.async = async
	s.state = StateUnbound
	s.mu.Unlock()
	return nil
}

// Bind binds the socket to port on local address ip ("" or "0.0.0.0"
// means INADDR_ANY; port 0 means kernel-assigned), transitioning
// Unbound -> Bound.
func (s *Socket) Bind(port int, ip string) error {
	s.mu.Lock()
	fd, state := s.fd, s.state
	s.mu.Unlock()
	if state != StateUnbound {
		return reactorerr.New(reactorerr.SocketBindFailed)
	}

	addrIP, err := resolveIPv4(ip)
	if err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("resolve bind address failed")
		return reactorerr.Wrap(reactorerr.SocketBindFailed, err)
	}
	sa := toSockaddrInet4(addrIP, port)
	if err := unix.Bind(fd, &sa); err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("bind failed")
		return reactorerr.Wrap(reactorerr.SocketBindFailed, err)
	}

	s.mu.Lock()
	s.state = StateBound
	s.mu.Unlock()

	if s.Type() == Udp {
		return s.registerEvent(poll.Readable | poll.Writable | poll.Error)
	}
	return nil
}

// Listen transitions a Bound TcpServer socket to Listening and
// registers interest in incoming connections.
func (s *Socket) Listen(backlog int) error {
	s.mu.Lock()
	fd, state, t := s.fd, s.state, s.socketType
	s.mu.Unlock()
	if state != StateBound || t != TcpServer {
		return reactorerr.New(reactorerr.SocketListenFailed)
	}
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	if err := unix.Listen(fd, backlog); err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("listen failed")
		return reactorerr.Wrap(reactorerr.SocketListenFailed, err)
	}

	s.mu.Lock()
	s.state = StateListening
	s.mu.Unlock()
	return s.registerEvent(poll.Readable | poll.Error)
}

// Connect issues a non-blocking connect to host:port. cb is invoked at
// most once: synchronously if the connect cannot be started or the
// kernel completed the handshake immediately (nil error), or later,
// from the Poll Thread, once OnWritableEvent observes completion. If
// timeout is positive and the connect has not completed by then, the
// socket is closed and cb is invoked with a SocketConnectFailed error.
// If Close runs before an in-progress connect completes, cb is not
// invoked.
func (s *Socket) Connect(host string, port int, cb ErrCallback, timeout time.Duration) {
	if cb == nil {
		cb = func(error) {}
	}

	s.mu.Lock()
	fd, state, t := s.fd, s.state, s.socketType
	s.mu.Unlock()
	if state != StateUnbound || t != TcpClient {
		s.safeErr(cb, reactorerr.New(reactorerr.SocketConnectFailed))
		return
	}

	ip, err := resolveIPv4(host)
	if err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("resolve connect host failed")
		s.safeErr(cb, reactorerr.Wrap(reactorerr.SocketConnectFailed, err))
		return
	}
	sa := toSockaddrInet4(ip, port)
	started := s.clk.NowMicros()

	err = unix.Connect(fd, &sa)
	switch {
	case err == nil:
		s.mu.Lock()
		s.state = StateConnected
		s.mu.Unlock()
		if regErr := s.registerEvent(poll.Readable | poll.Writable | poll.Error); regErr != nil {
			s.safeErr(cb, regErr)
			return
		}
		s.logger.Debug().Str("socket", s.id).Int("connect_micros", int(s.clk.NowMicros()-started)).Log("connect completed synchronously")
		s.safeErr(cb, nil)

	case err == unix.EINPROGRESS:
		s.logger.Debug().Str("socket", s.id).Log("connect in progress")
		s.mu.Lock()
		s.connecting = true
		s.connectStarted = started
		s.connectCallback = cb
		s.state = StateConnected
		s.mu.Unlock()
		if regErr := s.registerEvent(poll.Readable | poll.Writable | poll.Error); regErr != nil {
			s.safeErr(cb, regErr)
			return
		}
		if timeout > 0 {
			s.armConnectTimeout(timeout)
		}

	default:
		s.logger.Error().Str("socket", s.id).Err(err).Log("connect failed")
		s.safeErr(cb, reactorerr.Wrap(reactorerr.SocketConnectFailed, err))
	}
}

// armConnectTimeout resolves the spec's open question on connect
// timeout enforcement: the original accepted but never enforced it.
func (s *Socket) armConnectTimeout(timeout time.Duration) {
	self := s.self
	time.AfterFunc(timeout, func() {
		strong := self.Value()
		if strong == nil {
			return
		}
		strong.mu.Lock()
		if !strong.connecting {
			strong.mu.Unlock()
			return
		}
		strong.connecting = false
		cb := strong.connectCallback
		strong.mu.Unlock()

		strong.logger.Warn().Str("socket", strong.id).Log("connect timed out")
		strong.Close()
		if cb != nil {
			strong.safeErr(cb, reactorerr.New(reactorerr.SocketConnectFailed))
		}
	})
}

// Close tears the socket down unconditionally: deregisters poll
// interest, closes the fd, drops the send queue and any in-flight
// envelope (reporting sent-result(false) for each), and invokes the
// closed callback exactly once. Idempotent.
func (s *Socket) Close() {
	s.mu.Lock()
	fd := s.fd
	if fd == 0 {
		s.mu.Unlock()
		return
	}
	s.fd = 0
	s.state = StateInvalid
	s.socketType = Invalid
	s.connecting = false
	s.mu.Unlock()

	_ = s.pollThread.DelEvent(fd, nil)
	_ = unix.Close(fd)
	s.availableSend.Store(false)

	s.sendQueueMu.Lock()
	dropped := s.sendQueue
	s.sendQueue = nil
	s.sendQueueMu.Unlock()

	s.sendingMu.Lock()
	pending := s.sending
	s.sending = nil
	s.sendingMu.Unlock()

	if pending != nil {
		s.safeSentResult(pending.buffer.Data(), false)
	}
	for _, e := range dropped {
		s.safeSentResult(e.buffer.Data(), false)
	}

	s.safeClosed()
}

func (s *Socket) registerEvent(mask poll.EventMask) error {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	self := s.self
	return s.pollThread.AddEvent(fd, mask, func(em poll.EventMask) {
		strong := self.Value()
		if strong == nil {
			return
		}
		strong.onPollEvent(em)
	})
}

func (s *Socket) onPollEvent(mask poll.EventMask) {
	if mask&poll.Readable != 0 {
		if s.Type() == TcpServer {
			s.onAcceptEvent()
		} else {
			s.onReadableEvent()
		}
	}
	if mask&poll.Writable != 0 {
		s.onWritableEvent()
	}
	if mask&poll.Error != 0 {
		s.onErrorEvent()
	}
}

func (s *Socket) onAcceptEvent() {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	clientFD, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.logger.Error().Str("socket", s.id).Err(err).Log("accept failed")
		}
		return
	}

	if err := applyAcceptedOptions(clientFD, s.bufSize); err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("configure accepted socket failed")
		_ = unix.Close(clientFD)
		return
	}

	s.mu.Lock()
	beforeCreate := s.beforeCreateCallback
	s.mu.Unlock()
	client := beforeCreate()

	client.mu.Lock()
	client.fd = clientFD
	client.socketType = TcpClient
	client.state = StateConnected
	client.mu.Unlock()

	if err := client.registerEvent(poll.Readable | poll.Writable | poll.Error); err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("register accepted socket failed")
		client.Close()
		return
	}

	s.safeAccept(client, fromSockaddr(sa))
}

func (s *Socket) onReadableEvent() {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	buf := s.pollThread.SharedReadBuffer()
	for {
		tail := buf.WritableTail()
		if len(tail) == 0 {
			return
		}

		n, from, err := unix.Recvfrom(fd, tail, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.logger.Error().Str("socket", s.id).Err(err).Log("recv failed")
			s.Close()
			return
		}
		if n == 0 && s.Type() == TcpClient {
			s.logger.Info().Str("socket", s.id).Log("remote closed the connection")
			s.Close()
			return
		}

		start := buf.ContentSize()
		if err := buf.IncreaseContentSize(n); err != nil {
			s.logger.Error().Str("socket", s.id).Err(err).Log("shared read buffer overflowed")
			s.Close()
			return
		}
		s.safeRead(buffer.NewView(buf.Data()[start:]), fromSockaddr(from))
	}
}

func (s *Socket) onWritableEvent() {
	s.mu.Lock()
	connecting := s.connecting
	s.mu.Unlock()

	if connecting {
		s.finishConnect()
		return
	}

	s.availableSend.Store(true)
	s.flush(true)
}

func (s *Socket) finishConnect() {
	s.mu.Lock()
	if !s.connecting {
		s.mu.Unlock()
		return
	}
	s.connecting = false
	cb := s.connectCallback
	fd := s.fd
	started := s.connectStarted
	s.mu.Unlock()

	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		var cause error = err
		if cause == nil {
			cause = syscall.Errno(errno)
		}
		s.logger.Error().Str("socket", s.id).Err(cause).Log("connect failed")
		if cb != nil {
			s.safeErr(cb, reactorerr.Wrap(reactorerr.SocketConnectFailed, cause))
		}
		s.Close()
		return
	}

	s.logger.Debug().Str("socket", s.id).Int("connect_micros", int(s.clk.NowMicros()-started)).Log("connect completed")
	if cb != nil {
		s.safeErr(cb, nil)
	}
}

// onErrorEvent reports a generic SocketError to the error callback,
// carrying the pending SO_ERROR errno (or the getsockopt failure) as
// its Cause when there is one. The original source reports Success
// here; DESIGN.md records why this reimplementation surfaces a
// dedicated code instead.
func (s *Socket) onErrorEvent() {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	cause := err
	if err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("get socket error failed")
		s.Close()
	} else {
		s.logger.Info().Str("socket", s.id).Int("errno", errno).Log("socket error event")
		if errno != 0 {
			cause = syscall.Errno(errno)
		}
	}

	s.mu.Lock()
	cb := s.errorCallback
	s.mu.Unlock()
	s.safeErr(cb, &reactorerr.Error{Code: reactorerr.SocketError, Cause: cause})
}

// Send enqueues data for delivery to the connected peer (TcpClient or
// a connected Udp socket). It returns 0 without enqueuing if the
// socket is Invalid or data is empty.
func (s *Socket) Send(data []byte, tryFlush bool) int {
	return s.enqueue(data, nil, tryFlush)
}

// SendTo enqueues data addressed to host:port, for a Udp socket.
func (s *Socket) SendTo(data []byte, host string, port int, tryFlush bool) int {
	if host == "" && port == 0 {
		return s.enqueue(data, nil, tryFlush)
	}
	ip, err := resolveIPv4(host)
	if err != nil {
		s.logger.Error().Str("socket", s.id).Err(err).Log("resolve send-to address failed")
		return 0
	}
	return s.enqueue(data, &Addr{IP: ip, Port: port}, tryFlush)
}

// SendAddr enqueues data addressed to addr. A nil addr, or a zero-value
// Addr (no IP and port 0), is treated as connected-mode send.
func (s *Socket) SendAddr(data []byte, addr *Addr, tryFlush bool) int {
	if addr != nil && len(addr.IP) == 0 && addr.Port == 0 {
		addr = nil
	}
	return s.enqueue(data, addr, tryFlush)
}

func (s *Socket) enqueue(data []byte, addr *Addr, tryFlush bool) int {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd == 0 || len(data) == 0 {
		return 0
	}

	env := newEnvelope(data, addr)
	s.sendQueueMu.Lock()
	s.sendQueue = append(s.sendQueue, env)
	s.sendQueueMu.Unlock()

	if tryFlush && s.availableSend.Load() {
		s.flush(false)
	}
	return len(data)
}

// flush drains as much of the send queue as the kernel will currently
// accept. byPollThread distinguishes a call made from OnWritableEvent
// (which must not re-arm Writable interest; the socket is already
// registered) from a call made inline from Send (which must re-arm).
func (s *Socket) flush(byPollThread bool) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd == 0 {
		return
	}
	if !s.availableSend.Load() {
		return
	}

	s.sendingMu.Lock()
	defer s.sendingMu.Unlock()

	if s.sending != nil && s.sending.finished() {
		s.safeSentResult(s.sending.buffer.Data(), true)
		s.sending = nil
	}

	if s.sending == nil {
		s.sendQueueMu.Lock()
		if len(s.sendQueue) > 0 {
			s.sending = s.sendQueue[0]
			s.sendQueue = s.sendQueue[1:]
		}
		s.sendQueueMu.Unlock()
	}

	if s.sending == nil {
		s.stopWritableEvent(fd)
		return
	}

	fatal := false
	for {
		remaining := s.sending.remaining()
		if len(remaining) == 0 {
			break
		}
		n, err := s.writeOnce(fd, s.sending, remaining)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			s.logger.Error().Str("socket", s.id).Err(err).Log("send failed")
			// Resolves open question 1: a fatal send error terminates
			// the current envelope and the socket, rather than
			// retrying the same failing write forever.
			s.safeSentResult(s.sending.buffer.Data(), false)
			s.sending = nil
			fatal = true
			break
		}
		s.sending.advance(n)
	}

	s.availableSend.Store(false)
	if !byPollThread {
		s.startWritableEvent(fd)
	}

	if fatal {
		go s.Close()
	}
}

func (s *Socket) writeOnce(fd int, env *envelope, data []byte) (int, error) {
	var to unix.Sockaddr
	if env.addr != nil {
		sa := toSockaddrInet4(env.addr.IP, env.addr.Port)
		to = &sa
	}
	return unix.SendmsgN(fd, data, nil, to, s.sendFlags)
}

func (s *Socket) startWritableEvent(fd int) {
	s.logger.Debug().Str("socket", s.id).Log("start writable event")
	_ = s.pollThread.ModifyEvent(fd, poll.Readable|poll.Writable|poll.Error, nil)
}

func (s *Socket) stopWritableEvent(fd int) {
	s.logger.Debug().Str("socket", s.id).Log("stop writable event")
	_ = s.pollThread.ModifyEvent(fd, poll.Readable|poll.Error, nil)
}

func (s *Socket) safeRead(view buffer.View, addr *Addr) {
	s.mu.Lock()
	cb := s.readCallback
	s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("socket", s.id).Log(fmt.Sprintf("read callback panicked: %v", r))
		}
	}()
	cb(view, addr)
}

func (s *Socket) safeAccept(conn *Socket, addr *Addr) {
	s.mu.Lock()
	cb := s.acceptCallback
	s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("socket", s.id).Log(fmt.Sprintf("accept callback panicked: %v", r))
		}
	}()
	cb(conn, addr)
}

func (s *Socket) safeSentResult(data []byte, success bool) {
	s.mu.Lock()
	cb := s.sentResultCallback
	s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("socket", s.id).Log(fmt.Sprintf("sent-result callback panicked: %v", r))
		}
	}()
	cb(data, success)
}

func (s *Socket) safeClosed() {
	s.mu.Lock()
	cb := s.closedCallback
	s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("socket", s.id).Log(fmt.Sprintf("closed callback panicked: %v", r))
		}
	}()
	cb()
}

func (s *Socket) safeErr(cb ErrCallback, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("socket", s.id).Log(fmt.Sprintf("callback panicked: %v", r))
		}
	}()
	cb(err)
}

func applyCreateOptions(fd int, t Type, async bool, bufSize int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	if async {
		if err := unix.SetNonblock(fd, true); err != nil {
			return err
		}
	}
	if err := setCloExec(fd); err != nil {
		return err
	}

	switch t {
	case TcpClient:
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
		fallthrough
	case Udp:
		if bufSize > 0 {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bufSize); err != nil {
				return err
			}
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bufSize); err != nil {
				return err
			}
		}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 0, Linger: 0}); err != nil {
			return err
		}
	}
	return nil
}

func applyAcceptedOptions(fd int, bufSize int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if bufSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bufSize); err != nil {
			return err
		}
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bufSize); err != nil {
			return err
		}
	}
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 0, Linger: 0})
}

func setCloExec(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
	return err
}
