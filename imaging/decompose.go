package imaging

import (
	"encoding/binary"
	"math"

	"github.com/efficientgo/core/errors"
)

// RasterFormat identifies the pixel layout of a source texture.
type RasterFormat int

const (
	RasterUnknown RasterFormat = iota
	// RasterRGBA8 is 8-bit-per-channel RGBA, 4 bytes per pixel.
	RasterRGBA8
	// RasterRGBAFloat32 is 32-bit float RGBA, 16 bytes per pixel, channel
	// values nominally in [0, 1].
	RasterRGBAFloat32
)

// SupportedRasterFormat reports whether a source texture in the given format
// can be decomposed for streaming.
func SupportedRasterFormat(f RasterFormat) bool {
	switch f {
	case RasterRGBA8, RasterRGBAFloat32:
		return true
	}
	return false
}

// DecomposedSize returns the RGBX byte size a decomposed frame occupies for
// a source texture of the given dimensions.
func DecomposedSize(width, height int) int {
	return width * (height / 2) * 4
}

// Decompose extracts the left-eye view of a checkerboard-interleaved stereo
// texture into dst as RGBX at half the source's vertical resolution. In a
// checkerboard layout the left eye owns every pixel where column and row
// share parity, so column x of the output reads source rows 2y+(x&1).
func Decompose(src []byte, width, height int, format RasterFormat, dst []byte) error {
	if width <= 0 || height < 2 {
		return errors.Newf("invalid source dimensions %dx%d", width, height)
	}
	need := DecomposedSize(width, height)
	if len(dst) < need {
		return errors.Newf("destination buffer too small: got %d bytes, need %d", len(dst), need)
	}

	switch format {
	case RasterRGBA8:
		return decomposeRGBA8(src, width, height, dst)
	case RasterRGBAFloat32:
		return decomposeFloat32(src, width, height, dst)
	}
	return errors.Newf("unsupported raster format %d", format)
}

func decomposeRGBA8(src []byte, width, height int, dst []byte) error {
	if len(src) < width*height*4 {
		return errors.Newf("source buffer too short: got %d bytes, need %d", len(src), width*height*4)
	}
	outHeight := height / 2
	for y := 0; y < outHeight; y++ {
		for x := 0; x < width; x++ {
			srcRow := 2*y + (x & 1)
			s := (srcRow*width + x) * 4
			d := (y*width + x) * 4
			dst[d] = src[s]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s+2]
			dst[d+3] = 0xFF
		}
	}
	return nil
}

func decomposeFloat32(src []byte, width, height int, dst []byte) error {
	if len(src) < width*height*16 {
		return errors.Newf("source buffer too short: got %d bytes, need %d", len(src), width*height*16)
	}
	outHeight := height / 2
	for y := 0; y < outHeight; y++ {
		for x := 0; x < width; x++ {
			srcRow := 2*y + (x & 1)
			s := (srcRow*width + x) * 16
			d := (y*width + x) * 4
			dst[d] = quantize(src[s:])
			dst[d+1] = quantize(src[s+4:])
			dst[d+2] = quantize(src[s+8:])
			dst[d+3] = 0xFF
		}
	}
	return nil
}

func quantize(b []byte) byte {
	v := math.Float32frombits(binary.LittleEndian.Uint32(b))
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return byte(v*255 + 0.5)
}
