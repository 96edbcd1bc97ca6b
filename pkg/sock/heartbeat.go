package sock

import (
	"sync"
	"time"
)

// heartbeat owns the ping emission timer and the liveness watchdog for one
// session incarnation. Exactly one ping timer and at most one watchdog exist
// while it runs; stop tears both down so a stale timer from a previous
// incarnation can never fire against a new transport.
type heartbeat struct {
	pingInterval time.Duration
	pongTimeout  time.Duration
	sendPing     func()
	expire       func()

	mu       sync.Mutex
	ping     *time.Timer
	watchdog *time.Timer
	running  bool
}

func newHeartbeat(pingInterval, pongTimeout time.Duration, sendPing, expire func()) *heartbeat {
	return &heartbeat{
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		sendPing:     sendPing,
		expire:       expire,
	}
}

func (h *heartbeat) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.pingInterval <= 0 {
		return
	}
	h.running = true
	h.ping = time.AfterFunc(h.pingInterval, h.firePing)
	h.watchdog = time.AfterFunc(h.deadline(), h.fireWatchdog)
}

// reset re-arms the watchdog. Called for every inbound message of any type;
// $pong carries no special meaning beyond this generic reset.
func (h *heartbeat) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.watchdog.Reset(h.deadline())
}

func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	h.ping.Stop()
	h.watchdog.Stop()
}

func (h *heartbeat) deadline() time.Duration {
	return h.pingInterval + h.pongTimeout
}

func (h *heartbeat) firePing() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.ping.Reset(h.pingInterval)
	h.mu.Unlock()
	h.sendPing()
}

func (h *heartbeat) fireWatchdog() {
	h.mu.Lock()
	running := h.running
	h.running = false
	if running {
		h.ping.Stop()
	}
	h.mu.Unlock()
	if running {
		h.expire()
	}
}
