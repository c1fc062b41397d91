// Package imaging holds the pure image collaborators of the streaming
// engine: checkerboard stereo decomposition into a raw RGBX pixel buffer,
// and compression of that buffer into the payload sent on the wire.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/efficientgo/core/errors"
)

// Compressor turns a raw RGBX pixel buffer (4 bytes per pixel, fourth byte
// ignored) into a wire payload. Implementations must be pure: no retained
// state between calls beyond reusable scratch buffers owned by the caller's
// goroutine.
type Compressor interface {
	Compress(pixels []byte, width, height int) ([]byte, error)
}

// DefaultJPEGQuality matches the upstream streaming protocol, which favors
// image fidelity over bandwidth.
const DefaultJPEGQuality = 100

// JPEGCompressor encodes frames as baseline JPEG with 4:2:0 chroma
// subsampling.
type JPEGCompressor struct {
	Quality int

	buf bytes.Buffer
}

func NewJPEGCompressor(quality int) *JPEGCompressor {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &JPEGCompressor{Quality: quality}
}

func (c *JPEGCompressor) Compress(pixels []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("invalid frame dimensions %dx%d", width, height)
	}
	if len(pixels) < width*height*4 {
		return nil, errors.Newf("pixel buffer too short: got %d bytes, need %d", len(pixels), width*height*4)
	}

	// The encoder reads only R, G and B from an *image.RGBA, so the buffer
	// can be aliased directly without fixing up the X byte.
	img := &image.RGBA{
		Pix:    pixels[:width*height*4],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	c.buf.Reset()
	if err := jpeg.Encode(&c.buf, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, errors.Wrap(err, "jpeg encoding failed")
	}
	return c.buf.Bytes(), nil
}
