package poll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_AcquireRoundRobins(t *testing.T) {
	p := NewPool()
	require.NoError(t, p.Initialize(3))
	defer p.Release()

	ids := map[int]bool{}
	for i := 0; i < 6; i++ {
		th := p.Acquire()
		require.NotNil(t, th)
		ids[th.ID()] = true
	}
	assert.Len(t, ids, 3)
}

func TestPool_AcquireBeforeInitializeReturnsNil(t *testing.T) {
	p := NewPool()
	assert.Nil(t, p.Acquire())
}

func TestPool_InitializeTwiceFails(t *testing.T) {
	p := NewPool()
	require.NoError(t, p.Initialize(1))
	defer p.Release()

	require.Error(t, p.Initialize(1))
}

func TestPool_DefaultsSizeToNumCPU(t *testing.T) {
	p := NewPool()
	require.NoError(t, p.Initialize(0))
	defer p.Release()

	assert.GreaterOrEqual(t, p.Size(), 1)
}
