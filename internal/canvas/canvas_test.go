package canvas

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
)

func newTestCanvas(t *testing.T, size Size, mode IndexMode) *Canvas {
	t.Helper()
	c, err := New(1, "test", size, DefaultPalette(), mode)
	if err != nil {
		t.Fatalf("new canvas: %v", err)
	}
	return c
}

func TestCanvas_SetGet(t *testing.T) {
	c := newTestCanvas(t, Size{X: 4, Y: 4, Z: 4}, IndexLinear)
	if err := c.Set(1, 2, 3, 7); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(1, 2, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 7 {
		t.Fatalf("get=%d want 7", got)
	}
	if got, _ := c.Get(1, 2, 2); got != 0 {
		t.Fatalf("neighbor cell=%d want 0", got)
	}
	if c.CountPainted() != 1 {
		t.Fatalf("CountPainted=%d want 1", c.CountPainted())
	}
}

func TestCanvas_OutOfBounds(t *testing.T) {
	c := newTestCanvas(t, Size{X: 4, Y: 4, Z: 4}, IndexLinear)
	for _, p := range [][3]int{{4, 0, 0}, {0, 4, 0}, {0, 0, 4}, {-1, 0, 0}} {
		if err := c.Set(p[0], p[1], p[2], 1); !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("set %v: err=%v want ErrInvalidCoordinate", p, err)
		}
		if _, err := c.Get(p[0], p[1], p[2]); !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("get %v: err=%v want ErrInvalidCoordinate", p, err)
		}
	}
}

func TestCanvas_IndexLinearNonCubic(t *testing.T) {
	size := Size{X: 3, Y: 5, Z: 2}
	c := newTestCanvas(t, size, IndexLinear)
	seen := make(map[int]bool, size.Volume())
	for x := 0; x < size.X; x++ {
		for y := 0; y < size.Y; y++ {
			for z := 0; z < size.Z; z++ {
				i, err := c.Index(x, y, z)
				if err != nil {
					t.Fatalf("index(%d,%d,%d): %v", x, y, z, err)
				}
				if i < 0 || i >= c.Len() {
					t.Fatalf("index(%d,%d,%d)=%d outside [0,%d)", x, y, z, i, c.Len())
				}
				if seen[i] {
					t.Fatalf("index %d reused at (%d,%d,%d)", i, x, y, z)
				}
				seen[i] = true
				gx, gy, gz := IndexLinear.Coord(size, i)
				if gx != x || gy != y || gz != z {
					t.Fatalf("coord(%d)=(%d,%d,%d) want (%d,%d,%d)", i, gx, gy, gz, x, y, z)
				}
			}
		}
	}
	if i, _ := c.Index(2, 4, 1); i != 2*5*2+4*2+1 {
		t.Fatalf("index(2,4,1)=%d want %d", i, 2*5*2+4*2+1)
	}
}

func TestCanvas_IndexLegacyMatchesLinearOnCubic(t *testing.T) {
	size := Size{X: 4, Y: 4, Z: 4}
	legacy := newTestCanvas(t, size, IndexLegacy)
	linear := newTestCanvas(t, size, IndexLinear)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				a, _ := legacy.Index(x, y, z)
				b, _ := linear.Index(x, y, z)
				if a != b {
					t.Fatalf("(%d,%d,%d): legacy=%d linear=%d", x, y, z, a, b)
				}
			}
		}
	}
	if i, _ := legacy.Index(1, 2, 3); i != 1*4*4+2*4+3 {
		t.Fatalf("legacy index(1,2,3)=%d", i)
	}
}

func TestCanvas_IndexLegacyRejectsNonCubic(t *testing.T) {
	_, err := New(1, "x", Size{X: 2, Y: 3, Z: 4}, DefaultPalette(), IndexLegacy)
	if !errors.Is(err, ErrLegacyIndexNonCubic) {
		t.Fatalf("err=%v want ErrLegacyIndexNonCubic", err)
	}
}

func TestCanvas_InvalidSize(t *testing.T) {
	for _, s := range []Size{{0, 1, 1}, {1, -1, 1}, {1, 1, MaxSide + 1}} {
		if _, err := New(1, "x", s, DefaultPalette(), IndexLinear); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("size %+v: err=%v want ErrInvalidSize", s, err)
		}
	}
}

func TestFromGrid_SnapshotRoundTrip(t *testing.T) {
	size := Size{X: 3, Y: 3, Z: 3}
	grid := make([]byte, size.Volume())
	for i := range grid {
		grid[i] = byte(i % 33)
	}
	c, err := FromGrid(9, "g", size, DefaultPalette(), IndexLinear, grid)
	if err != nil {
		t.Fatalf("from grid: %v", err)
	}
	got := c.Snapshot()
	if string(got) != string(grid) {
		t.Fatalf("snapshot mismatch")
	}
	if _, err := FromGrid(9, "g", size, DefaultPalette(), IndexLinear, grid[:5]); !errors.Is(err, ErrGridSize) {
		t.Fatalf("short grid err=%v want ErrGridSize", err)
	}
}

func TestCanvas_HasPaintedNeighbor(t *testing.T) {
	c := newTestCanvas(t, Size{X: 4, Y: 4, Z: 4}, IndexLinear)
	if c.HasPaintedNeighbor(0, 0, 0) {
		t.Fatalf("empty canvas reports neighbor")
	}
	_ = c.Set(2, 1, 2, 5)
	if !c.HasPaintedNeighbor(2, 2, 2) {
		t.Fatalf("expected neighbor below (2,2,2)")
	}
	if c.HasPaintedNeighbor(3, 3, 3) {
		t.Fatalf("(3,3,3) has no painted neighbor")
	}
	// Diagonals do not count.
	if c.HasPaintedNeighbor(3, 2, 3) {
		t.Fatalf("diagonal counted as neighbor")
	}
}

func TestCanvas_ConcurrentSetsOnSharedWord(t *testing.T) {
	// Cells 0..3 share one word; every writer must land.
	c := newTestCanvas(t, Size{X: 1, Y: 1, Z: 4}, IndexLinear)
	var wg sync.WaitGroup
	for z := 0; z < 4; z++ {
		wg.Add(1)
		go func(z int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = c.Set(0, 0, z, uint8(z+1))
			}
		}(z)
	}
	wg.Wait()
	for z := 0; z < 4; z++ {
		if got, _ := c.Get(0, 0, z); got != uint8(z+1) {
			t.Fatalf("cell z=%d got %d want %d", z, got, z+1)
		}
	}
}

func TestPalette_PackUnpackHex(t *testing.T) {
	p := DefaultPalette()
	if p.Len() != 32 {
		t.Fatalf("default palette len=%d want 32", p.Len())
	}
	hex := p.Hex()
	if hex[0] != "#6d001a" || hex[31] != "#ffffff" {
		t.Fatalf("hex endpoints: %s %s", hex[0], hex[31])
	}
	q, err := UnpackPalette(3, p.Pack())
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if q.ID != 3 || q.Len() != 32 || q.Colors[2] != p.Colors[2] {
		t.Fatalf("unpacked palette mismatch: %+v", q.Colors[2])
	}
	if _, err := UnpackPalette(1, []byte{1, 2}); !errors.Is(err, ErrInvalidPalette) {
		t.Fatalf("err=%v want ErrInvalidPalette", err)
	}
	if p.Valid(0) || !p.Valid(1) || !p.Valid(32) || p.Valid(33) {
		t.Fatalf("palette bounds check wrong")
	}
}

func TestRandomGrid_FloorBiased(t *testing.T) {
	size := Size{X: 16, Y: 16, Z: 16}
	grid := RandomGrid(size, IndexLinear, 32, rand.New(rand.NewPCG(1, 2)))
	if len(grid) != size.Volume() {
		t.Fatalf("len=%d", len(grid))
	}
	var floor, top int
	for i, v := range grid {
		if int(v) > 32 {
			t.Fatalf("cell %d has color %d", i, v)
		}
		_, y, _ := IndexLinear.Coord(size, i)
		if v == 0 {
			continue
		}
		if y == 0 {
			floor++
		}
		if y == size.Y-1 {
			top++
		}
	}
	if floor <= top {
		t.Fatalf("floor=%d top=%d, expected denser floor", floor, top)
	}
}

func TestParseIndexMode(t *testing.T) {
	if m, err := ParseIndexMode("Legacy"); err != nil || m != IndexLegacy {
		t.Fatalf("legacy: %v %v", m, err)
	}
	if m, err := ParseIndexMode(""); err != nil || m != IndexLinear {
		t.Fatalf("default: %v %v", m, err)
	}
	if _, err := ParseIndexMode("zigzag"); err == nil {
		t.Fatalf("expected error")
	}
}
