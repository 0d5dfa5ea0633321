package poll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestToEpollEvents_CombinesFlags(t *testing.T) {
	got := toEpollEvents(Readable | Writable | Error | ET)
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLET), got)
}

func TestFromEpollEvents_RoundTripsReadWrite(t *testing.T) {
	mask := fromEpollEvents(uint32(unix.EPOLLIN | unix.EPOLLOUT))
	assert.Equal(t, Readable|Writable, mask)
}

func TestFromEpollEvents_HupOrErrBothMapToError(t *testing.T) {
	assert.Equal(t, Error, fromEpollEvents(uint32(unix.EPOLLHUP)))
	assert.Equal(t, Error, fromEpollEvents(uint32(unix.EPOLLERR)))
}
