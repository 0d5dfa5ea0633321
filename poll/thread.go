// Package poll wraps a single Linux epoll instance as a Thread: one
// dispatch goroutine, one fd->callback table, and one shared scratch
// read buffer reused across every readable event the thread services.
// A Pool hands out Threads round-robin so a socket's entire lifetime
// runs its callbacks on one goroutine.
package poll

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/netreactor/reactorsock/buffer"
	"github.com/netreactor/reactorsock/logging"
	"github.com/netreactor/reactorsock/reactorerr"
)

// ErrFDNotRegistered is returned by ModifyEvent and DelEvent when the
// fd has no active registration on this thread. del_event is
// idempotent: calling it twice is not an error condition a caller must
// special-case, just a signal the work was already done.
var ErrFDNotRegistered = errors.New("poll: fd not registered")

const (
	maxEpollEvents       = 64
	sharedReadBufferSize = 1 << 20 // 1 MiB
	pollTimeoutMillis    = 1000
)

// Thread owns one epoll instance and the goroutine that drains it.
// Exactly one Thread services a given registered fd for the lifetime
// of that registration; AddEvent/ModifyEvent/DelEvent are safe to call
// from any goroutine, but the EventCallback itself always runs on the
// Thread's own goroutine.
type Thread struct {
	id     int
	logger logging.Logger

	mu        sync.Mutex
	epfd      int
	started   bool
	released  bool
	callbacks map[int]EventCallback

	stop chan struct{}
	done chan struct{}

	sharedReadBuffer *buffer.Mutable
}

// NewThread constructs a Thread identified by id, used only for log
// correlation and Pool round-robin bookkeeping. Initialize must be
// called before the thread accepts registrations.
func NewThread(id int, logger logging.Logger) *Thread {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Thread{
		id:        id,
		logger:    logger,
		callbacks: make(map[int]EventCallback),
	}
}

// ID returns the thread's position within its Pool.
func (t *Thread) ID() int {
	return t.id
}

// Initialize creates the epoll instance and starts the dispatch
// goroutine. A second call, including one after Release, fails with
// AlreadyInitialized.
func (t *Thread) Initialize() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return reactorerr.New(reactorerr.AlreadyInitialized)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		t.mu.Unlock()
		t.logger.Error().Int("thread", t.id).Err(err).Log("create epoll failed")
		return reactorerr.Wrap(reactorerr.CreateEpollFailed, err)
	}

	t.epfd = epfd
	t.sharedReadBuffer = buffer.NewMutable(sharedReadBufferSize)
	t.started = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.run()
	return nil
}

// Release stops the dispatch goroutine and closes the epoll fd. It
// blocks until the goroutine has observed the stop signal, which, since
// the loop only checks between epoll_wait calls, can take up to the
// 1-second poll timeout.
func (t *Thread) Release() {
	t.mu.Lock()
	if !t.started || t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	stop, done, epfd := t.stop, t.done, t.epfd
	t.mu.Unlock()

	close(stop)
	<-done

	t.mu.Lock()
	_ = unix.Close(epfd)
	t.callbacks = make(map[int]EventCallback)
	t.mu.Unlock()
}

// SharedReadBuffer returns the thread-local scratch buffer used to
// stage bytes read off the wire before they are handed to a callback.
// It is reset (content size zeroed, capacity retained) on every call,
// so it must only be used transiently within a single EventCallback
// invocation running on this thread, never retained across calls.
func (t *Thread) SharedReadBuffer() *buffer.Mutable {
	t.sharedReadBuffer.Reset()
	return t.sharedReadBuffer
}

// AddEvent registers fd for the conditions in mask. It fails if fd is
// already registered on this thread.
func (t *Thread) AddEvent(fd int, mask EventMask, cb EventCallback) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.callbacks[fd]; exists {
		return fmt.Errorf("poll: fd %d already registered", fd)
	}
	if err := unix.EpollCtl(t.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		t.logger.Error().Int("thread", t.id).Int("fd", fd).Err(err).Log("epoll_ctl add failed")
		return reactorerr.Wrap(reactorerr.AddEpollEventFailed, err)
	}
	t.callbacks[fd] = cb
	return nil
}

// ModifyEvent updates the interest mask for an already-registered fd.
// completion, if non-nil, is invoked synchronously with whether the
// change succeeded.
func (t *Thread) ModifyEvent(fd int, mask EventMask, completion func(ok bool)) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}

	t.mu.Lock()
	_, exists := t.callbacks[fd]
	if !exists {
		t.mu.Unlock()
		runCompletion(completion, false)
		return ErrFDNotRegistered
	}
	err := unix.EpollCtl(t.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	t.mu.Unlock()

	runCompletion(completion, err == nil)
	if err != nil {
		t.logger.Error().Int("thread", t.id).Int("fd", fd).Err(err).Log("epoll_ctl mod failed")
		return reactorerr.Wrap(reactorerr.ModifyEpollEventFailed, err)
	}
	return nil
}

// DelEvent removes fd's registration. It is idempotent: calling it a
// second time on the same fd returns ErrFDNotRegistered rather than
// touching the kernel's epoll set again, since the fd may already have
// been closed and reused for something unrelated by the time the
// second call arrives.
func (t *Thread) DelEvent(fd int, completion func(ok bool)) error {
	t.mu.Lock()
	_, exists := t.callbacks[fd]
	if !exists {
		t.mu.Unlock()
		runCompletion(completion, false)
		return ErrFDNotRegistered
	}
	err := unix.EpollCtl(t.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(t.callbacks, fd)
	t.mu.Unlock()

	runCompletion(completion, err == nil)
	if err != nil {
		t.logger.Error().Int("thread", t.id).Int("fd", fd).Err(err).Log("epoll_ctl del failed")
		return reactorerr.Wrap(reactorerr.DeleteEpollEventFailed, err)
	}
	return nil
}

func runCompletion(completion func(ok bool), ok bool) {
	if completion == nil {
		return
	}
	defer func() { recover() }()
	completion(ok)
}

func (t *Thread) run() {
	defer close(t.done)

	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := unix.EpollWait(t.epfd, events, pollTimeoutMillis)

		select {
		case <-t.stop:
			return
		default:
		}

		if err != nil {
			if err == unix.EINTR {
				continue
			}
			t.logger.Warn().Int("thread", t.id).Err(err).Log("epoll_wait failed")
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			t.mu.Lock()
			cb, ok := t.callbacks[fd]
			if !ok {
				_ = unix.EpollCtl(t.epfd, unix.EPOLL_CTL_DEL, fd, nil)
			}
			t.mu.Unlock()
			if !ok {
				continue
			}
			t.dispatch(cb, fromEpollEvents(events[i].Events))
		}
	}
}

func (t *Thread) dispatch(cb EventCallback, mask EventMask) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Int("thread", t.id).Log(fmt.Sprintf("event callback panicked: %v", r))
		}
	}()
	cb(mask)
}
