package stream

import (
	"sync"
	"time"

	"github.com/sdao/mayausb/transport"
)

type bulkResult struct {
	data   []byte
	status transport.Status
}

// fakePort plays scripted reads and records writes. Reads are consumed in
// order; once the script is exhausted every read times out, which is what a
// quiet bulk endpoint does.
type fakePort struct {
	mu     sync.Mutex
	reads  []bulkResult
	writes [][]byte
	// writeFn, when set, decides the outcome of each write; call counts
	// from zero. Writes are recorded either way.
	writeFn func(call int, buf []byte) (int, transport.Status)

	noIn, noOut bool
}

func (p *fakePort) ReadInbound(buf []byte, _ time.Duration) (int, transport.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		return 0, transport.StatusTimeout
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	return copy(buf, r.data), r.status
}

func (p *fakePort) WriteOutbound(buf []byte, _ time.Duration) (int, transport.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := len(p.writes)
	p.writes = append(p.writes, append([]byte(nil), buf...))
	if p.writeFn != nil {
		return p.writeFn(call, buf)
	}
	return len(buf), transport.StatusOK
}

func (p *fakePort) InAvailable() bool {
	return !p.noIn
}

func (p *fakePort) OutAvailable() bool {
	return !p.noOut
}

func (p *fakePort) recordedWrites() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

func (p *fakePort) waitForWrites(n int, timeout time.Duration) [][]byte {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if w := p.recordedWrites(); len(w) >= n {
			return w
		}
		time.Sleep(time.Millisecond)
	}
	return p.recordedWrites()
}

// identityCompressor returns the pixel buffer unchanged, so tests can
// compare wire payloads byte for byte.
type identityCompressor struct{}

func (identityCompressor) Compress(pixels []byte, _, _ int) ([]byte, error) {
	return append([]byte(nil), pixels...), nil
}

// gateCompressor blocks inside Compress until released, letting tests hold
// the send loop mid-frame.
type gateCompressor struct {
	entered chan struct{}
	release chan struct{}
}

func newGateCompressor() *gateCompressor {
	return &gateCompressor{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (c *gateCompressor) Compress(pixels []byte, _, _ int) ([]byte, error) {
	c.entered <- struct{}{}
	<-c.release
	return append([]byte(nil), pixels...), nil
}

func patternBuffer() []byte {
	buf := make([]byte, BufferLen)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}
