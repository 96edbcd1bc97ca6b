package sock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeartbeatEmitsPings(t *testing.T) {
	var pings atomic.Int32
	h := newHeartbeat(10*time.Millisecond, time.Hour, func() { pings.Add(1) }, func() {})
	h.start()
	defer h.stop()

	require.Eventually(t, func() bool {
		return pings.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestHeartbeatWatchdogFiresWithoutTraffic(t *testing.T) {
	expired := make(chan struct{})
	h := newHeartbeat(10*time.Millisecond, 20*time.Millisecond, func() {}, func() { close(expired) })
	h.start()
	defer h.stop()

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
}

func TestHeartbeatResetDefersWatchdog(t *testing.T) {
	var expired atomic.Bool
	h := newHeartbeat(20*time.Millisecond, 20*time.Millisecond, func() {}, func() { expired.Store(true) })
	h.start()
	defer h.stop()

	// Keep resetting well inside the pingInterval+pongTimeout deadline.
	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		h.reset()
		require.False(t, expired.Load())
	}
}

func TestHeartbeatStopClearsTimers(t *testing.T) {
	var pings, expirations atomic.Int32
	h := newHeartbeat(10*time.Millisecond, 10*time.Millisecond, func() { pings.Add(1) }, func() { expirations.Add(1) })
	h.start()
	h.stop()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, pings.Load())
	require.Zero(t, expirations.Load())

	// reset after stop must not resurrect the watchdog
	h.reset()
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, expirations.Load())
}

func TestHeartbeatWatchdogFiresOnce(t *testing.T) {
	var expirations atomic.Int32
	h := newHeartbeat(5*time.Millisecond, 5*time.Millisecond, func() {}, func() { expirations.Add(1) })
	h.start()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), expirations.Load())
}
