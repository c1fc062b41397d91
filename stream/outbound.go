package stream

import (
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"
)

// frameSlot is the single-slot buffer between frame producers and the send
// loop. Lossy by design: a producer never blocks and never queues, it either
// fills an empty slot or drops the frame. ready is read and written only
// under mu.
type frameSlot struct {
	mu   sync.Mutex
	cond *sync.Cond

	pixels []byte
	width  int
	height int
	ready  bool
}

// OfferFrame hands a decomposed RGBX pixel buffer to the send loop. It
// never blocks: if the slot's mutex is held (a send is in flight) or the
// slot still holds an unconsumed frame, the new frame is dropped and false
// is returned. On acceptance the pixels are copied, so the caller may reuse
// its buffer immediately.
func (l *Link) OfferFrame(pixels []byte, width, height int) bool {
	l.metrics.framesOffered.Inc()
	if len(pixels) > MaxImageSize {
		l.metrics.framesDropped.Inc()
		return false
	}

	if !l.slot.mu.TryLock() {
		l.metrics.framesDropped.Inc()
		return false
	}
	defer l.slot.mu.Unlock()

	if l.slot.ready {
		l.metrics.framesDropped.Inc()
		return false
	}

	l.slot.pixels = append(l.slot.pixels[:0], pixels...)
	l.slot.width = width
	l.slot.height = height
	l.slot.ready = true
	l.slot.cond.Signal()
	return true
}

// StartOutboundLoop starts the send loop on a detached worker. The loop
// blocks until a frame is offered or cancellation is requested; on
// cancellation it writes one best-effort zero-length close sentinel and
// exits. Any short or failed header/chunk write terminates the loop and
// invokes onFailure exactly once. Returns false without starting a worker
// unless the handshake has completed and the outbound endpoint exists.
func (l *Link) StartOutboundLoop(onFailure func()) bool {
	if !l.port.OutAvailable() {
		return false
	}
	if !l.handshake.Load() {
		return false
	}

	// Neutralize any frame left over from a previous loop.
	l.slot.mu.Lock()
	l.slot.ready = false
	l.slot.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendWorker = Go(func(cancel *Canceller) {
		l.runOutbound(cancel, onFailure)
	})
	return true
}

func (l *Link) runOutbound(cancel *Canceller, onFailure func()) {
	for {
		l.slot.mu.Lock()
		for !l.slot.ready && !cancel.Cancelled() {
			l.slot.cond.Wait()
		}

		if cancel.Cancelled() {
			written, status := writeCloseSentinel(l.port)
			l.slot.mu.Unlock()
			// Best effort only; a partial sentinel is observable in the
			// log but never fails teardown.
			_ = level.Debug(l.logger).Log("msg", "sent close sentinel", "written", written, "status", status.String())
			break
		}

		// The slot mutex is held across compression and the write, so
		// producers drop frames for the whole send, not just the copy.
		payload, err := l.compressor.Compress(l.slot.pixels, l.slot.width, l.slot.height)
		if err == nil {
			err = writeWireFrame(l.port, payload)
		}
		if err != nil {
			l.slot.mu.Unlock()
			l.metrics.loopFailures.WithLabelValues("outbound").Inc()
			_ = level.Warn(l.logger).Log("msg", "send loop failed", "err", err)
			onFailure()
			break
		}

		l.metrics.framesSent.Inc()
		l.metrics.bytesSent.Add(float64(len(payload)))
		l.slot.ready = false
		l.slot.mu.Unlock()
	}

	_ = level.Debug(l.logger).Log("msg", "send loop ended")
	cancel.Cancel()
}

// SendDataSync writes one length-prefixed frame on the caller's goroutine,
// serialized against the send loop through the slot mutex. Intended for
// occasional out-of-band messages, not the streaming path.
func (l *Link) SendDataSync(data []byte) error {
	if !l.port.OutAvailable() {
		return errors.New("outbound endpoint unavailable")
	}
	if !l.handshake.Load() {
		return errors.New("handshake not complete")
	}

	l.slot.mu.Lock()
	defer l.slot.mu.Unlock()
	return writeWireFrame(l.port, data)
}
