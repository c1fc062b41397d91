package stream

import (
	"encoding/binary"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/sdao/mayausb/transport"
)

const (
	// BufferLen is the transfer unit of the link: the handshake pattern
	// length and the chunk size of the outbound wire protocol.
	BufferLen = 16384

	// MaxImageSize bounds the pixel buffer a producer may offer.
	MaxImageSize = 10 << 20

	// pollTimeout bounds each bulk transfer so loops can observe
	// cancellation.
	pollTimeout = 500 * time.Millisecond

	// headerLen is the size of the big-endian payload-length prefix.
	headerLen = 4
)

// writeWireFrame sends one outbound frame: a 4-byte big-endian length header
// followed by the payload in BufferLen-sized chunks, each transfer bounded
// by pollTimeout. A transfer that completes with fewer bytes than requested
// is a transport failure; nothing is retried.
func writeWireFrame(port transport.Port, payload []byte) error {
	var header [headerLen]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	written, status := port.WriteOutbound(header[:], pollTimeout)
	if status != transport.StatusOK || written < headerLen {
		return errors.Newf("header write failed: wrote %d of %d bytes, status %s", written, headerLen, status)
	}

	for off := 0; off < len(payload); off += BufferLen {
		end := off + BufferLen
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[off:end]
		written, status = port.WriteOutbound(chunk, pollTimeout)
		if status != transport.StatusOK || written < len(chunk) {
			return errors.Newf("chunk write failed at offset %d: wrote %d of %d bytes, status %s",
				off, written, len(chunk), status)
		}
	}
	return nil
}

// writeCloseSentinel sends the reserved zero-length header that tells the
// device the stream is closing. Best effort: the outcome is reported but
// never acted on.
func writeCloseSentinel(port transport.Port) (int, transport.Status) {
	var header [headerLen]byte
	return port.WriteOutbound(header[:], pollTimeout)
}
