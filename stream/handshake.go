package stream

import (
	"github.com/go-kit/log/level"

	"github.com/sdao/mayausb/transport"
)

// StartHandshake runs the one-shot link verification on a detached worker:
// it drains stale input, then polls the inbound endpoint until a full
// pattern buffer arrives and compares it byte for byte. onComplete is
// invoked exactly once with the outcome, and never if the worker is
// cancelled first. Returns false without starting a worker when the inbound
// endpoint is unavailable or the handshake already succeeded.
func (l *Link) StartHandshake(onComplete func(success bool)) bool {
	if !l.port.InAvailable() {
		return false
	}
	if l.handshake.Load() {
		_ = level.Debug(l.logger).Log("msg", "handshake already complete; not starting again")
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.recvWorker = Go(func(cancel *Canceller) {
		l.runHandshake(cancel, onComplete)
	})
	return true
}

func (l *Link) runHandshake(cancel *Canceller, onComplete func(bool)) {
	l.FlushInbound()

	buf := make([]byte, BufferLen)
	read := 0
	status := transport.StatusTimeout
	for !cancel.Cancelled() && status == transport.StatusTimeout {
		read, status = l.port.ReadInbound(buf, pollTimeout)
	}

	if cancel.Cancelled() {
		_ = level.Debug(l.logger).Log("msg", "handshake cancelled")
		// The loop runs at most once; mark it finished either way.
		cancel.Cancel()
		return
	}

	success := status == transport.StatusOK && matchesPattern(buf[:read])
	if !success {
		_ = level.Warn(l.logger).Log("msg", "handshake failed", "read", read, "status", status.String())
	} else {
		_ = level.Info(l.logger).Log("msg", "handshake complete")
	}

	l.handshake.Store(success)
	onComplete(success)
	cancel.Cancel()
}

// matchesPattern reports whether buf is exactly the expected verification
// sequence: BufferLen bytes with buf[i] == i mod 256.
func matchesPattern(buf []byte) bool {
	if len(buf) != BufferLen {
		return false
	}
	for i, b := range buf {
		if b != byte(i) {
			return false
		}
	}
	return true
}
