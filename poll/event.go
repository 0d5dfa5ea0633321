package poll

import "golang.org/x/sys/unix"

// EventMask is a bitset of readiness conditions a caller can register
// interest in, or that a dispatch callback reports as having fired.
type EventMask uint32

const (
	// Readable fires on EPOLLIN: data available, or a listening socket
	// has a connection to accept.
	Readable EventMask = 1 << iota
	// Writable fires on EPOLLOUT: either the send buffer has room, or a
	// non-blocking connect has completed (successfully or not).
	Writable
	// Error fires on EPOLLHUP or EPOLLERR: the peer reset the
	// connection, or the socket itself is in an error state.
	Error
	// ET requests edge-triggered delivery instead of the epoll default,
	// level-triggered. A caller requesting ET must drain the fd on each
	// callback until it observes EAGAIN.
	ET
)

// EventCallback receives the subset of the registered mask that fired
// for one epoll_wait return. It runs on the poll.Thread's own
// goroutine; it must not block.
type EventCallback func(mask EventMask)

func toEpollEvents(mask EventMask) uint32 {
	var e uint32
	if mask&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	if mask&Error != 0 {
		e |= unix.EPOLLHUP | unix.EPOLLERR
	}
	if mask&ET != 0 {
		e |= unix.EPOLLET
	}
	return e
}

func fromEpollEvents(e uint32) EventMask {
	var mask EventMask
	if e&unix.EPOLLIN != 0 {
		mask |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= Writable
	}
	if e&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		mask |= Error
	}
	return mask
}
