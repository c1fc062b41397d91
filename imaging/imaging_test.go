package imaging

import (
	"bytes"
	"encoding/binary"
	"image/jpeg"
	"math"
	"testing"
)

// rgba8Source builds a width x height RGBA8 texture whose pixel (x, y) has
// R = x, G = y, B = 0, making decomposition results easy to predict.
func rgba8Source(width, height int) []byte {
	src := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := (y*width + x) * 4
			src[p] = byte(x)
			src[p+1] = byte(y)
			src[p+3] = 0xFF
		}
	}
	return src
}

func TestDecomposeRGBA8(t *testing.T) {
	const width, height = 4, 6
	src := rgba8Source(width, height)
	dst := make([]byte, DecomposedSize(width, height))

	if err := Decompose(src, width, height, RasterRGBA8, dst); err != nil {
		t.Fatal(err)
	}

	// Column x reads source rows 2y+(x&1): the left eye's pixels in a
	// checkerboard layout.
	for y := 0; y < height/2; y++ {
		for x := 0; x < width; x++ {
			p := (y*width + x) * 4
			wantRow := byte(2*y + (x & 1))
			if dst[p] != byte(x) || dst[p+1] != wantRow {
				t.Errorf("output (%d,%d) = (%d,%d); want (%d,%d)", x, y, dst[p], dst[p+1], x, wantRow)
			}
			if dst[p+3] != 0xFF {
				t.Errorf("output (%d,%d) X byte = %d; want 0xFF", x, y, dst[p+3])
			}
		}
	}
}

func TestDecomposeFloat32(t *testing.T) {
	const width, height = 2, 2
	src := make([]byte, width*height*16)
	put := func(pixel int, r, g, b float32) {
		base := pixel * 16
		binary.LittleEndian.PutUint32(src[base:], math.Float32bits(r))
		binary.LittleEndian.PutUint32(src[base+4:], math.Float32bits(g))
		binary.LittleEndian.PutUint32(src[base+8:], math.Float32bits(b))
	}
	put(0, 0, 0.5, 1)    // (0,0): read by output column 0
	put(3, 2.0, -1.0, 1) // (1,1): read by output column 1, channels clamp

	dst := make([]byte, DecomposedSize(width, height))
	if err := Decompose(src, width, height, RasterRGBAFloat32, dst); err != nil {
		t.Fatal(err)
	}

	if dst[0] != 0 || dst[1] != 128 || dst[2] != 255 {
		t.Errorf("pixel 0 = (%d,%d,%d); want (0,128,255)", dst[0], dst[1], dst[2])
	}
	if dst[4] != 255 || dst[5] != 0 || dst[6] != 255 {
		t.Errorf("pixel 1 = (%d,%d,%d); want (255,0,255)", dst[4], dst[5], dst[6])
	}
}

func TestDecomposeValidation(t *testing.T) {
	dst := make([]byte, DecomposedSize(4, 4))
	for _, tc := range []struct {
		name   string
		src    []byte
		w, h   int
		format RasterFormat
		dst    []byte
	}{
		{name: "short source", src: make([]byte, 8), w: 4, h: 4, format: RasterRGBA8, dst: dst},
		{name: "short destination", src: make([]byte, 64), w: 4, h: 4, format: RasterRGBA8, dst: dst[:4]},
		{name: "bad dimensions", src: make([]byte, 64), w: 0, h: 4, format: RasterRGBA8, dst: dst},
		{name: "unknown format", src: make([]byte, 64), w: 4, h: 4, format: RasterUnknown, dst: dst},
	} {
		if err := Decompose(tc.src, tc.w, tc.h, tc.format, tc.dst); err == nil {
			t.Errorf("%s: no error", tc.name)
		}
	}
}

func TestSupportedRasterFormat(t *testing.T) {
	if !SupportedRasterFormat(RasterRGBA8) || !SupportedRasterFormat(RasterRGBAFloat32) {
		t.Error("supported formats reported unsupported")
	}
	if SupportedRasterFormat(RasterUnknown) {
		t.Error("unknown format reported supported")
	}
}

func TestJPEGCompressorProducesDecodableOutput(t *testing.T) {
	const width, height = 16, 8
	comp := NewJPEGCompressor(90)

	out, err := comp.Compress(rgba8Source(width, height), width, height)
	if err != nil {
		t.Fatal(err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		t.Errorf("decoded size %dx%d; want %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}
}

func TestJPEGCompressorValidation(t *testing.T) {
	comp := NewJPEGCompressor(0)
	if comp.Quality != DefaultJPEGQuality {
		t.Errorf("quality = %d; want default %d", comp.Quality, DefaultJPEGQuality)
	}

	if _, err := comp.Compress(make([]byte, 8), 4, 4); err == nil {
		t.Error("short pixel buffer not rejected")
	}
	if _, err := comp.Compress(nil, 0, 4); err == nil {
		t.Error("zero width not rejected")
	}
}
