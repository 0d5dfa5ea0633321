package socket

import (
	"github.com/netreactor/reactorsock/clock"
	"github.com/netreactor/reactorsock/logging"
)

// Option configures a Socket at construction.
type Option func(*Socket)

// WithLogger sets the Logger a Socket writes diagnostics to. The
// default is logging.NoOp{}.
func WithLogger(logger logging.Logger) Option {
	return func(s *Socket) { s.logger = logger }
}

// WithSendFlags overrides the flags passed to send(2)/sendto(2). The
// default is 0, matching the original source; callers on Linux
// commonly pass unix.MSG_NOSIGNAL here to suppress SIGPIPE on a
// peer-reset stream, though Go's runtime already ignores SIGPIPE on
// non-stdio descriptors so it is not required for correctness.
func WithSendFlags(flags int) Option {
	return func(s *Socket) { s.sendFlags = flags }
}

// WithBufferSizes overrides the SO_SNDBUF/SO_RCVBUF size applied to
// TcpClient and Udp sockets (and to accepted TcpServer connections).
// The default is 256 KiB, matching the original source.
func WithBufferSizes(bytes int) Option {
	return func(s *Socket) { s.bufSize = bytes }
}

// WithClock overrides the Clock used to time connect latency for
// diagnostics. The default is clock.Real{}.
func WithClock(c clock.Clock) Option {
	return func(s *Socket) { s.clk = c }
}
