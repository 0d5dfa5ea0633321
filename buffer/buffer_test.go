package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutable_AppendAndConsume(t *testing.T) {
	b := NewMutable(8)
	require.NoError(t, b.Append([]byte("abcd")))
	assert.Equal(t, 4, b.ContentSize())
	assert.Equal(t, "abcd", string(b.Data()))

	var errCap *ErrNotEnoughCapacity
	err := b.Append([]byte("too many bytes"))
	require.ErrorAs(t, err, &errCap)

	b.Consume(2)
	assert.Equal(t, "cd", string(b.Data()))
}

func TestMutable_ConsumeAllResets(t *testing.T) {
	b := NewMutable(8)
	require.NoError(t, b.Append([]byte("abcd")))
	b.Consume(100)
	assert.Equal(t, 0, b.ContentSize())
}

func TestMutable_WritableTailRoundTrip(t *testing.T) {
	b := NewMutable(8)
	tail := b.WritableTail()
	n := copy(tail, "hi")
	require.NoError(t, b.IncreaseContentSize(n))
	assert.Equal(t, "hi", string(b.Data()))

	err := b.IncreaseContentSize(100)
	assert.Error(t, err)
}

func TestMutable_ReserveIdempotent(t *testing.T) {
	b := NewMutable(16)
	require.NoError(t, b.Append([]byte("hello")))

	require.NoError(t, b.Reserve(4096))
	cap1 := b.Capacity()
	require.NoError(t, b.Reserve(4096))
	assert.Equal(t, cap1, b.Capacity(), "reserve(k) twice must not reallocate the second time")
	assert.Equal(t, "hello", string(b.Data()))
}

func TestMutable_ReserveShrinkBelowContentFails(t *testing.T) {
	b := NewMutable(16)
	require.NoError(t, b.Append([]byte("hello")))
	err := b.Reserve(2)
	assert.Error(t, err)
}

func TestMutable_ReserveSmallBufferNeverShrinks(t *testing.T) {
	b := NewMutable(512)
	require.NoError(t, b.Append([]byte("x")))
	require.NoError(t, b.Reserve(10))
	assert.Equal(t, 512, b.Capacity(), "buffers under 2KiB are kept unconditionally")
}

func TestMutable_ReserveKeepsWhenWastingLessThanHalf(t *testing.T) {
	b := NewMutable(4096)
	require.NoError(t, b.Reserve(3000)) // 2*3000 > 4096 -> keep
	assert.Equal(t, 4096, b.Capacity())
}

func TestMutable_ReserveReallocatesOnBigSpike(t *testing.T) {
	b := NewMutable(1 << 20)
	require.NoError(t, b.Reserve(4096)) // 2*4096 < 1MiB -> reallocate
	assert.Equal(t, 4096, b.Capacity())
}

func TestCopyBuffer_OutlivesSourceView(t *testing.T) {
	shared := NewMutable(64)
	require.NoError(t, shared.Append([]byte("payload")))

	view := NewView(shared.Data())
	cb := NewCopyBuffer(view)

	shared.Reset()
	require.NoError(t, shared.Append([]byte("clobbered!")))

	assert.Equal(t, "payload", string(cb.Data()))
	assert.Equal(t, 7, cb.ContentSize())
}
