// Package buffer provides the fixed-capacity mutable buffer, the
// borrowed immutable view, and the owned copy buffer used throughout
// reactorsock to move bytes between the kernel and user callbacks
// without forcing an allocation on every read.
package buffer

import "fmt"

// ErrNotEnoughCapacity is returned by Append/IncreaseContentSize when the
// requested write would exceed the buffer's capacity.
type ErrNotEnoughCapacity struct {
	Requested int
	Available int
}

func (e *ErrNotEnoughCapacity) Error() string {
	return fmt.Sprintf("buffer: not enough capacity (requested %d, available %d)", e.Requested, e.Available)
}

// reallocateBelow is the capacity under which Reserve never reallocates,
// regardless of how much smaller the requested capacity is.
const reallocateBelow = 2 * 1024

// Mutable is a contiguous, fixed-capacity byte region with a content
// size cursor. It is the owned, writable buffer type: the poll thread's
// shared read buffer and any buffer a caller builds up incrementally
// before handing it to Socket.Send are both Mutable values.
//
// Mutable is not safe for concurrent use; callers serialize access the
// same way the poll thread serializes access to its shared read buffer.
type Mutable struct {
	data []byte
	size int
}

// NewMutable allocates a Mutable with the given capacity.
func NewMutable(capacity int) *Mutable {
	if capacity < 0 {
		capacity = 0
	}
	return &Mutable{data: make([]byte, capacity)}
}

// Capacity returns the total number of bytes the buffer can hold.
func (b *Mutable) Capacity() int { return len(b.data) }

// ContentSize returns the number of bytes currently held.
func (b *Mutable) ContentSize() int { return b.size }

// AvailableSpace returns the number of bytes that can still be written.
func (b *Mutable) AvailableSpace() int { return len(b.data) - b.size }

// Data returns the valid prefix of the buffer, b.Data()[:ContentSize()].
// The returned slice aliases the buffer; callers that need to retain
// the bytes past the next mutation must copy them (see CopyBuffer).
func (b *Mutable) Data() []byte { return b.data[:b.size] }

// WritableTail returns the unused suffix of the buffer, suitable as the
// destination of a direct read(2)/recvfrom(2) call. Follow a direct
// write with IncreaseContentSize to make the bytes visible.
func (b *Mutable) WritableTail() []byte { return b.data[b.size:] }

// Append copies p into the buffer's tail, advancing the content size.
// It fails with ErrNotEnoughCapacity rather than growing the buffer:
// growth is always an explicit Reserve call.
func (b *Mutable) Append(p []byte) error {
	if len(p) > b.AvailableSpace() {
		return &ErrNotEnoughCapacity{Requested: len(p), Available: b.AvailableSpace()}
	}
	n := copy(b.data[b.size:], p)
	b.size += n
	return nil
}

// IncreaseContentSize acknowledges n bytes written directly into
// WritableTail by a caller (e.g. a recvfrom syscall).
func (b *Mutable) IncreaseContentSize(n int) error {
	if n > b.AvailableSpace() {
		return &ErrNotEnoughCapacity{Requested: n, Available: b.AvailableSpace()}
	}
	b.size += n
	return nil
}

// Consume shifts the prefix of length n out of the buffer, moving any
// remaining content to the front. n >= ContentSize() resets the buffer.
func (b *Mutable) Consume(n int) {
	if n >= b.size {
		b.Reset()
		return
	}
	copy(b.data, b.data[n:b.size])
	b.size -= n
}

// Reset empties the buffer without releasing its backing array.
func (b *Mutable) Reset() { b.size = 0 }

// Reserve adjusts capacity to exactly newCapacity, preserving the
// current content. Shrinking below ContentSize() fails. Reallocation
// is avoided in two cases, to prevent thrash on common small buffers:
// the current capacity is already under 2 KiB, or the requested
// capacity would free less than half the current capacity. Otherwise
// the buffer is reallocated to exactly newCapacity and the content
// copied across.
func (b *Mutable) Reserve(newCapacity int) error {
	if newCapacity < b.size {
		return &ErrNotEnoughCapacity{Requested: newCapacity, Available: b.size}
	}
	if newCapacity > len(b.data) {
		next := make([]byte, newCapacity)
		copy(next, b.data[:b.size])
		b.data = next
		return nil
	}
	if len(b.data) < reallocateBelow {
		return nil
	}
	if 2*newCapacity > len(b.data) {
		return nil
	}
	next := make([]byte, newCapacity)
	copy(next, b.data[:b.size])
	b.data = next
	return nil
}

// View is a borrowed, immutable slice of bytes: {data, size}. It never
// owns the memory it points at and is only valid for as long as the
// buffer it was taken from is not mutated. It is the type handed to
// read callbacks so that the common case of "look at the bytes, maybe
// echo them back" never pays for a copy.
type View struct {
	data []byte
}

// NewView borrows data as a View. The caller must not mutate data for
// as long as the View is in use.
func NewView(data []byte) View { return View{data: data} }

// Data returns the borrowed bytes.
func (v View) Data() []byte { return v.data }

// ContentSize returns the number of borrowed bytes.
func (v View) ContentSize() int { return len(v.data) }

// CopyBuffer is an owned byte region, built by copying a View so its
// contents outlive the buffer the View borrowed from (e.g. the poll
// thread's shared read buffer, which is reused on the next loop
// iteration). A trailing zero byte is appended after the content for
// defensive textual printing/debugging, matching the C++ source's
// CopyBuffer, which always over-allocates by one byte.
type CopyBuffer struct {
	data []byte // len(data) == contentSize+1, last byte is always 0
	size int
}

// NewCopyBuffer copies exactly v.ContentSize() bytes out of v.
func NewCopyBuffer(v View) *CopyBuffer {
	cb := &CopyBuffer{data: make([]byte, v.ContentSize()+1), size: v.ContentSize()}
	copy(cb.data, v.Data())
	return cb
}

// Data returns the copied content (excluding the trailing zero byte).
func (c *CopyBuffer) Data() []byte { return c.data[:c.size] }

// ContentSize returns the number of copied bytes.
func (c *CopyBuffer) ContentSize() int { return c.size }
