package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal_NowMicrosIsCloseToWallClock(t *testing.T) {
	before := time.Now().UnixMicro()
	got := Real{}.NowMicros()
	after := time.Now().UnixMicro()

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}
