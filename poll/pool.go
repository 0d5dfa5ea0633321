package poll

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/netreactor/reactorsock/logging"
	"github.com/netreactor/reactorsock/reactorerr"
)

// Pool owns a fixed-size set of Threads and hands them out round-robin
// to new sockets. A socket is given its Thread once, when it is
// constructed, and keeps it for its whole lifetime.
type Pool struct {
	mu          sync.Mutex
	threads     []*Thread
	counter     atomic.Uint64
	initialized bool
	logger      logging.Logger
}

// PoolOption configures a Pool at construction.
type PoolOption func(*Pool)

// WithLogger sets the Logger passed to every Thread the Pool creates.
func WithLogger(logger logging.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool constructs an uninitialized Pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{logger: logging.NoOp{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize starts size poll threads. A size of 0 or less defaults to
// runtime.NumCPU(), mirroring the common "one poll thread per core"
// deployment shape.
func (p *Pool) Initialize(size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return reactorerr.New(reactorerr.AlreadyInitialized)
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}

	threads := make([]*Thread, 0, size)
	for i := 0; i < size; i++ {
		th := NewThread(i, p.logger)
		if err := th.Initialize(); err != nil {
			for _, started := range threads {
				started.Release()
			}
			return err
		}
		threads = append(threads, th)
	}

	p.threads = threads
	p.initialized = true
	return nil
}

// Acquire returns the next Thread in round-robin order. It returns nil
// if the Pool has not been initialized.
func (p *Pool) Acquire() *Thread {
	p.mu.Lock()
	n := len(p.threads)
	threads := p.threads
	p.mu.Unlock()

	if n == 0 {
		return nil
	}
	idx := p.counter.Add(1) % uint64(n)
	return threads[idx]
}

// Size reports the number of threads in the pool, or 0 if
// uninitialized.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Release stops every thread in the pool. The Pool may be
// re-Initialize'd afterward.
func (p *Pool) Release() {
	p.mu.Lock()
	threads := p.threads
	p.threads = nil
	p.initialized = false
	p.mu.Unlock()

	for _, t := range threads {
		t.Release()
	}
}
