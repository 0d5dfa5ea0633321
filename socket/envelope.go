package socket

import "github.com/netreactor/reactorsock/buffer"

// envelope is a queued outbound buffer together with its optional
// destination address and its drain cursor. It owns a CopyBuffer so the
// bytes outlive whatever the caller passed to Send, and is exclusively
// owned by the socket's send queue or its single in-flight
// sending-envelope slot.
type envelope struct {
	buffer *buffer.CopyBuffer
	addr   *Addr
	offset int
}

func newEnvelope(data []byte, addr *Addr) *envelope {
	return &envelope{
		buffer: buffer.NewCopyBuffer(buffer.NewView(data)),
		addr:   addr,
	}
}

// finished reports whether every byte of the envelope has been handed
// to the kernel.
func (e *envelope) finished() bool {
	return e.offset >= e.buffer.ContentSize()
}

// remaining returns the unsent suffix of the envelope's buffer.
func (e *envelope) remaining() []byte {
	return e.buffer.Data()[e.offset:]
}

func (e *envelope) advance(n int) {
	e.offset += n
}
