// Package stream implements the session transport engine for an
// accessory-mode USB link: the device handshake, a polling inbound frame
// loop, and the signal-driven outbound loop that compresses and writes
// length-prefixed image frames. Every loop runs on a cancellable detached
// worker; all transfers are bounded by a poll timeout so cancellation is
// observed within one cycle.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdao/mayausb/imaging"
	"github.com/sdao/mayausb/transport"
)

const (
	// flushTimeout is the short read timeout used when draining stale
	// inbound data before the handshake.
	flushTimeout = 10 * time.Millisecond

	// JoinTimeout is how long teardown waits for a cancelled loop to
	// observe its flag, twice the poll interval. A loop still running
	// after that is reported as a leak.
	JoinTimeout = 2 * pollTimeout
)

// Link runs the stream loops over one bulk pipe pair. At most one inbound
// worker (handshake or read loop) and one outbound worker are active at a
// time; the handshake gates both stream loops.
type Link struct {
	port       transport.Port
	compressor imaging.Compressor
	logger     log.Logger
	metrics    *metrics

	handshake atomic.Bool

	mu         sync.Mutex
	recvWorker *Worker
	sendWorker *Worker

	slot frameSlot
}

// NewLink wires a Link over the given port. The compressor produces the
// outbound payload from offered pixel buffers. logger and reg may be nil.
func NewLink(port transport.Port, compressor imaging.Compressor, logger log.Logger, reg prometheus.Registerer) *Link {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	l := &Link{
		port:       port,
		compressor: compressor,
		logger:     logger,
		metrics:    newMetrics(reg),
	}
	l.slot.cond = sync.NewCond(&l.slot.mu)
	return l
}

// HandshakeComplete reports whether the link verification succeeded.
func (l *Link) HandshakeComplete() bool {
	return l.handshake.Load()
}

// FlushInbound drains buffered inbound data until a read times out, so
// stale bytes from a previous session cannot corrupt the handshake.
func (l *Link) FlushInbound() {
	if !l.port.InAvailable() {
		return
	}
	buf := make([]byte, BufferLen)
	for {
		_, status := l.port.ReadInbound(buf, flushTimeout)
		if status != transport.StatusOK {
			return
		}
	}
}

// Close requests cancellation on all active loops, wakes the outbound loop,
// and joins each worker with JoinTimeout. A join that times out is logged
// as a leaked worker; Close never blocks past the timeout per loop.
func (l *Link) Close() {
	l.mu.Lock()
	recv, send := l.recvWorker, l.sendWorker
	l.recvWorker, l.sendWorker = nil, nil
	l.mu.Unlock()

	if send != nil && !send.Cancelled() {
		send.Cancel()
		// Wake the send loop so it does not wait out a frame signal.
		l.slot.cond.Broadcast()
	}
	if recv != nil && !recv.Cancelled() {
		recv.Cancel()
	}

	if recv != nil && !recv.Join(JoinTimeout) {
		_ = level.Warn(l.logger).Log("msg", "receive worker did not exit before teardown deadline; leaking")
	}
	if send != nil && !send.Join(JoinTimeout) {
		_ = level.Warn(l.logger).Log("msg", "send worker did not exit before teardown deadline; leaking")
	}
}
