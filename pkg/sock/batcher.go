package sock

import (
	"sync"
	"time"

	"github.com/authsock/authsock/pkg/wire"
)

// defaultBatchWindow is the debounce delay used to coalesce non-immediate
// sends into a single transport write.
const defaultBatchWindow = 20 * time.Millisecond

// batcher coalesces outgoing envelopes into batched writes. Envelopes
// enqueued while the gate is not writable are held and flushed once the
// handshake completes; the queue is discarded on transport loss.
type batcher struct {
	window time.Duration
	write  func([]wire.Envelope)

	mu       sync.Mutex
	queue    []wire.Envelope
	timer    *time.Timer
	writable bool
}

func newBatcher(window time.Duration, write func([]wire.Envelope)) *batcher {
	if window <= 0 {
		window = defaultBatchWindow
	}
	return &batcher{window: window, write: write}
}

// enqueue appends an envelope to the write queue. If immediate is true any
// pending debounce timer is canceled and the whole queue is flushed
// synchronously; otherwise a debounce timer is armed unless one is already
// pending.
func (b *batcher) enqueue(env wire.Envelope, immediate bool) {
	b.mu.Lock()
	b.queue = append(b.queue, env)
	if !b.writable {
		b.mu.Unlock()
		return
	}
	if !immediate {
		if b.timer == nil {
			b.timer = time.AfterFunc(b.window, b.flush)
		}
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	b.flush()
}

// flush encodes and writes the full queue in FIFO order, clearing it
// atomically. A no-op while the gate is not writable.
func (b *batcher) flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if !b.writable || len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()
	b.write(queue)
}

// setWritable opens or closes the gate. Opening it flushes anything held
// while the handshake was still in flight.
func (b *batcher) setWritable(writable bool) {
	b.mu.Lock()
	b.writable = writable
	b.mu.Unlock()
	if writable {
		b.flush()
	}
}

// reset discards the queue and any pending debounce timer and closes the
// gate. Called on transport loss so the queue never grows across reconnects.
func (b *batcher) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.queue = nil
	b.writable = false
}
