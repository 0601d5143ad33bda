package canvas

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// MaxSide is the largest extent of one axis; the VXL header stores each
// dimension as a u16.
const MaxSide = 0xFFFF

var (
	ErrInvalidCoordinate   = errors.New("invalid coordinate")
	ErrInvalidSize         = errors.New("invalid canvas size")
	ErrGridSize            = errors.New("grid length does not match canvas size")
	ErrLegacyIndexNonCubic = errors.New("legacy index formula requires a cubic canvas")
)

type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (s Size) Volume() int { return s.X * s.Y * s.Z }

func (s Size) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < s.X && y < s.Y && z < s.Z
}

func (s Size) Cubic() bool { return s.X == s.Y && s.Y == s.Z }

func (s Size) Validate() error {
	if s.X <= 0 || s.Y <= 0 || s.Z <= 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrInvalidSize, s.X, s.Y, s.Z)
	}
	if s.X > MaxSide || s.Y > MaxSide || s.Z > MaxSide {
		return fmt.Errorf("%w: %dx%dx%d exceeds %d", ErrInvalidSize, s.X, s.Y, s.Z, MaxSide)
	}
	return nil
}

// Canvas is the color grid of one place.
//
// Cells are bytes packed four to a word. Reads are atomic loads and writes
// are CAS loops on the containing word, so a cell is never torn and no lock
// is shared between unrelated cells.
type Canvas struct {
	id      int64
	name    string
	size    Size
	mode    IndexMode
	palette Palette

	cells []atomic.Uint32
	n     int

	createdAt time.Time
	modified  atomic.Int64 // unix nanos
}

// New returns an empty canvas.
func New(id int64, name string, size Size, palette Palette, mode IndexMode) (*Canvas, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}
	if mode == IndexLegacy && !size.Cubic() {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrLegacyIndexNonCubic, size.X, size.Y, size.Z)
	}
	n := size.Volume()
	now := time.Now().UTC()
	c := &Canvas{
		id:        id,
		name:      name,
		size:      size,
		mode:      mode,
		palette:   palette,
		cells:     make([]atomic.Uint32, (n+3)/4),
		n:         n,
		createdAt: now,
	}
	c.modified.Store(now.UnixNano())
	return c, nil
}

// FromGrid builds a canvas from flattened cells laid out in the canvas's
// index order.
func FromGrid(id int64, name string, size Size, palette Palette, mode IndexMode, grid []byte) (*Canvas, error) {
	c, err := New(id, name, size, palette, mode)
	if err != nil {
		return nil, err
	}
	if len(grid) != c.n {
		return nil, fmt.Errorf("%w: got %d want %d", ErrGridSize, len(grid), c.n)
	}
	for i := 0; i < len(c.cells); i++ {
		var w uint32
		for k := 0; k < 4; k++ {
			j := i*4 + k
			if j >= c.n {
				break
			}
			w |= uint32(grid[j]) << (uint(k) * 8)
		}
		c.cells[i].Store(w)
	}
	return c, nil
}

func (c *Canvas) ID() int64        { return c.id }
func (c *Canvas) Name() string     { return c.name }
func (c *Canvas) Size() Size       { return c.size }
func (c *Canvas) Mode() IndexMode  { return c.mode }
func (c *Canvas) Palette() Palette { return c.palette }
func (c *Canvas) Len() int         { return c.n }

func (c *Canvas) CreatedAt() time.Time { return c.createdAt }

func (c *Canvas) LastModified() time.Time {
	return time.Unix(0, c.modified.Load()).UTC()
}

// SetTimes restores the timestamps recorded in durable storage.
func (c *Canvas) SetTimes(created, modified time.Time) {
	if !created.IsZero() {
		c.createdAt = created.UTC()
	}
	if !modified.IsZero() {
		c.modified.Store(modified.UnixNano())
	}
}

// Index maps a coordinate to its flat cell index.
func (c *Canvas) Index(x, y, z int) (int, error) {
	if !c.size.Contains(x, y, z) {
		return 0, fmt.Errorf("%w: (%d,%d,%d) outside %dx%dx%d", ErrInvalidCoordinate, x, y, z, c.size.X, c.size.Y, c.size.Z)
	}
	return c.mode.index(c.size, x, y, z), nil
}

func (c *Canvas) Get(x, y, z int) (uint8, error) {
	i, err := c.Index(x, y, z)
	if err != nil {
		return 0, err
	}
	return c.load(i), nil
}

// Set replaces one cell. Concurrent writers to the same cell resolve as
// last-writer-wins.
func (c *Canvas) Set(x, y, z int, color uint8) error {
	i, err := c.Index(x, y, z)
	if err != nil {
		return err
	}
	c.store(i, color)
	c.modified.Store(time.Now().UnixNano())
	return nil
}

// HasPaintedNeighbor reports whether any in-bounds face neighbor is non-empty.
func (c *Canvas) HasPaintedNeighbor(x, y, z int) bool {
	for _, d := range faceOffsets {
		nx, ny, nz := x+d[0], y+d[1], z+d[2]
		if !c.size.Contains(nx, ny, nz) {
			continue
		}
		if c.load(c.mode.index(c.size, nx, ny, nz)) != 0 {
			return true
		}
	}
	return false
}

var faceOffsets = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// Snapshot copies every cell into a new buffer in flat-index order. Writers
// may interleave with the copy, so the result can mix old and new cells, but
// each byte is a value that was actually stored.
func (c *Canvas) Snapshot() []byte {
	out := make([]byte, c.n)
	for i := range c.cells {
		w := c.cells[i].Load()
		for k := 0; k < 4; k++ {
			j := i*4 + k
			if j >= c.n {
				break
			}
			out[j] = byte(w >> (uint(k) * 8))
		}
	}
	return out
}

// CountPainted returns the number of non-empty cells.
func (c *Canvas) CountPainted() int {
	count := 0
	for _, b := range c.Snapshot() {
		if b != 0 {
			count++
		}
	}
	return count
}

func (c *Canvas) load(i int) uint8 {
	return uint8(c.cells[i>>2].Load() >> (uint(i&3) * 8))
}

func (c *Canvas) store(i int, v uint8) {
	w := &c.cells[i>>2]
	shift := uint(i&3) * 8
	mask := uint32(0xFF) << shift
	for {
		old := w.Load()
		next := old&^mask | uint32(v)<<shift
		if old == next || w.CompareAndSwap(old, next) {
			return
		}
	}
}
