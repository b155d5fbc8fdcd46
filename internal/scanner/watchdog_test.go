package scanner

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogFiresAfterTimeout(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(30*time.Millisecond, func() { fired.Add(1) })
	defer w.stop()

	time.Sleep(50 * time.Millisecond)
	assert.GreaterOrEqual(t, fired.Load(), int32(1))
}

func TestWatchdogRearmsAfterFiring(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(20*time.Millisecond, func() { fired.Add(1) })
	defer w.stop()

	time.Sleep(90 * time.Millisecond)
	assert.GreaterOrEqual(t, fired.Load(), int32(2), "must keep firing while stalled")
}

func TestWatchdogResetDefersFiring(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(60*time.Millisecond, func() { fired.Add(1) })
	defer w.stop()

	for i := 0; i < 8; i++ {
		time.Sleep(20 * time.Millisecond)
		w.reset()
	}
	assert.Zero(t, fired.Load(), "steady progress must hold the watchdog off")
}

func TestWatchdogStopIsIdempotent(t *testing.T) {
	w := newWatchdog(10*time.Millisecond, func() {})
	w.stop()
	w.stop()
}
