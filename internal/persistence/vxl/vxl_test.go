package vxl

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/JLsquare/voxplace/internal/canvas"
)

func paintedCanvas(t *testing.T, size canvas.Size) *canvas.Canvas {
	t.Helper()
	c, err := canvas.New(5, "plaza", size, canvas.DefaultPalette(), canvas.IndexLinear)
	if err != nil {
		t.Fatalf("canvas: %v", err)
	}
	_ = c.Set(0, 0, 0, 1)
	_ = c.Set(size.X-1, size.Y-1, size.Z-1, 32)
	_ = c.Set(1, 0, 2, 17)
	return c
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := paintedCanvas(t, canvas.Size{X: 3, Y: 4, Z: 5})
	b, err := Encode(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("VXL \x05plaza\x010100\x20\x03\x00\x04\x00\x05\x00")) {
		t.Fatalf("unexpected header % x", b[:24])
	}

	got, err := Decode(b, 5, canvas.IndexLinear)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name() != "plaza" || got.Size() != c.Size() {
		t.Fatalf("header mismatch: %q %+v", got.Name(), got.Size())
	}
	if got.Palette().Len() != 32 || got.Palette().Colors[5] != c.Palette().Colors[5] {
		t.Fatalf("palette mismatch")
	}
	if !bytes.Equal(got.Snapshot(), c.Snapshot()) {
		t.Fatalf("grid mismatch")
	}
	if v, _ := got.Get(1, 0, 2); v != 17 {
		t.Fatalf("cell (1,0,2)=%d want 17", v)
	}
}

func TestDecode_BadMagic(t *testing.T) {
	b, _ := Encode(paintedCanvas(t, canvas.Size{X: 2, Y: 2, Z: 2}))
	copy(b, "VOX ")
	if _, err := Decode(b, 1, canvas.IndexLinear); !errors.Is(err, ErrCorruptFormat) {
		t.Fatalf("err=%v want ErrCorruptFormat", err)
	}
}

func TestDecode_BadVersion(t *testing.T) {
	b, _ := Encode(paintedCanvas(t, canvas.Size{X: 2, Y: 2, Z: 2}))
	// magic(4) + len(1) + "plaza"(5) + reserved(1)
	copy(b[11:], "0200")
	if _, err := Decode(b, 1, canvas.IndexLinear); !errors.Is(err, ErrCorruptFormat) {
		t.Fatalf("err=%v want ErrCorruptFormat", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	b, _ := Encode(paintedCanvas(t, canvas.Size{X: 2, Y: 2, Z: 2}))
	for _, n := range []int{3, 12, 20, len(b) - 4} {
		if _, err := Decode(b[:n], 1, canvas.IndexLinear); !errors.Is(err, ErrCorruptFormat) {
			t.Fatalf("truncated at %d: err=%v want ErrCorruptFormat", n, err)
		}
	}
}

func TestEncode_NameTooLong(t *testing.T) {
	c, _ := canvas.New(1, string(bytes.Repeat([]byte("a"), 256)), canvas.Size{X: 1, Y: 1, Z: 1}, canvas.DefaultPalette(), canvas.IndexLinear)
	if _, err := Encode(c); !errors.Is(err, ErrUnencodable) {
		t.Fatalf("err=%v want ErrUnencodable", err)
	}
}

func TestGrid_CompressRoundTrip(t *testing.T) {
	grid := make([]byte, 64)
	grid[10] = 3
	blob, err := CompressGrid(grid)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	got, err := DecompressGrid(blob, 64)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, grid) {
		t.Fatalf("grid mismatch")
	}
	if _, err := DecompressGrid(blob, 63); !errors.Is(err, ErrCorruptFormat) {
		t.Fatalf("short size err=%v", err)
	}
	if _, err := DecompressGrid(blob, 65); !errors.Is(err, ErrCorruptFormat) {
		t.Fatalf("long size err=%v", err)
	}
	if _, err := DecompressGrid([]byte("not gzip"), 64); !errors.Is(err, ErrCorruptFormat) {
		t.Fatalf("garbage err=%v", err)
	}
}

func TestWriteReadFile(t *testing.T) {
	c := paintedCanvas(t, canvas.Size{X: 4, Y: 4, Z: 4})
	path := filepath.Join(t.TempDir(), "voxels", "5.vxl")
	if err := WriteFile(path, c); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFile(path, 5, canvas.IndexLegacy)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got.Snapshot(), c.Snapshot()) {
		t.Fatalf("grid mismatch")
	}
}
