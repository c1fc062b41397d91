package stream

import (
	"github.com/go-kit/log/level"

	"github.com/sdao/mayausb/transport"
)

// StartInboundLoop starts the continuous polling read loop. Each completed
// read delivers the filled frame buffer to onFrame; the buffer is reused
// between reads and must not be retained. A transport error beyond timeout
// delivers onFrame(nil) once and terminates the loop; cancellation
// terminates it silently. Returns false without starting a worker unless the
// handshake has completed and the inbound endpoint exists.
func (l *Link) StartInboundLoop(onFrame func(frame []byte), frameSize int) bool {
	if !l.port.InAvailable() {
		return false
	}
	if !l.handshake.Load() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.recvWorker = Go(func(cancel *Canceller) {
		l.runInbound(cancel, onFrame, frameSize)
	})
	return true
}

func (l *Link) runInbound(cancel *Canceller, onFrame func([]byte), frameSize int) {
	buf := make([]byte, frameSize)
	status := transport.StatusTimeout
	cancelled := false
	for {
		if cancelled = cancel.Cancelled(); cancelled {
			break
		}
		if status != transport.StatusOK && status != transport.StatusTimeout {
			break
		}
		_, status = l.port.ReadInbound(buf, pollTimeout)
		if status == transport.StatusOK {
			l.metrics.framesRecv.Inc()
			onFrame(buf)
		}
	}

	if !cancelled {
		// The loop ended on a transport error, not cancellation.
		l.metrics.loopFailures.WithLabelValues("inbound").Inc()
		_ = level.Warn(l.logger).Log("msg", "read loop ended on transport error", "status", status.String())
		onFrame(nil)
	}

	_ = level.Debug(l.logger).Log("msg", "read loop ended")
	cancel.Cancel()
}
