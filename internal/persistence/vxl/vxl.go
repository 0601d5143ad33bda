// Package vxl reads and writes the VXL canvas container and the gzip grid
// blob shared by storage and the snapshot endpoint.
package vxl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/JLsquare/voxplace/internal/canvas"
)

var (
	Magic   = [4]byte{'V', 'X', 'L', ' '}
	Version = [4]byte{'0', '1', '0', '0'}
)

const reservedByte = 1

var (
	ErrCorruptFormat = errors.New("corrupt vxl data")
	ErrUnencodable   = errors.New("canvas cannot be encoded as vxl")
)

// Header is everything in a VXL file before the grid.
type Header struct {
	Name    string
	Size    canvas.Size
	Palette []canvas.Color
}

func Encode(c *canvas.Canvas) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write emits the VXL container. The grid is written in the canvas's own
// index order.
func Write(w io.Writer, c *canvas.Canvas) error {
	name := c.Name()
	pal := c.Palette().Colors
	if len(name) > 255 {
		return fmt.Errorf("%w: name is %d bytes", ErrUnencodable, len(name))
	}
	if len(pal) > 255 {
		return fmt.Errorf("%w: palette has %d colors", ErrUnencodable, len(pal))
	}
	size := c.Size()
	if size.X > canvas.MaxSide || size.Y > canvas.MaxSide || size.Z > canvas.MaxSide {
		return fmt.Errorf("%w: size %dx%dx%d", ErrUnencodable, size.X, size.Y, size.Z)
	}

	bw := bufio.NewWriter(w)
	hdr := make([]byte, 0, 4+1+len(name)+1+4+1+6+len(pal)*3)
	hdr = append(hdr, Magic[:]...)
	hdr = append(hdr, byte(len(name)))
	hdr = append(hdr, name...)
	hdr = append(hdr, reservedByte)
	hdr = append(hdr, Version[:]...)
	hdr = append(hdr, byte(len(pal)))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(size.X))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(size.Y))
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(size.Z))
	for _, col := range pal {
		hdr = append(hdr, col.R, col.G, col.B)
	}
	if _, err := bw.Write(hdr); err != nil {
		return err
	}

	zw := gzip.NewWriter(bw)
	if _, err := zw.Write(c.Snapshot()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

func Decode(b []byte, id int64, mode canvas.IndexMode) (*canvas.Canvas, error) {
	return Read(bytes.NewReader(b), id, mode)
}

// Read parses a VXL container into a fresh canvas. The palette id is left
// zero; callers that track palettes assign it.
func Read(r io.Reader, id int64, mode canvas.IndexMode) (*canvas.Canvas, error) {
	br := bufio.NewReader(r)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	grid, err := decompress(br, h.Size.Volume())
	if err != nil {
		return nil, err
	}
	c, err := canvas.FromGrid(id, h.Name, h.Size, canvas.Palette{Colors: h.Palette}, mode, grid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
	}
	return c, nil
}

// ReadHeader consumes the fixed part of a VXL stream and leaves r at the
// start of the compressed grid.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return h, fmt.Errorf("%w: magic: %v", ErrCorruptFormat, err)
	}
	if magic != Magic {
		return h, fmt.Errorf("%w: bad magic %q", ErrCorruptFormat, magic[:])
	}

	var one [1]byte
	if _, err := io.ReadFull(r, one[:]); err != nil {
		return h, fmt.Errorf("%w: name length: %v", ErrCorruptFormat, err)
	}
	name := make([]byte, one[0])
	if _, err := io.ReadFull(r, name); err != nil {
		return h, fmt.Errorf("%w: name: %v", ErrCorruptFormat, err)
	}
	h.Name = string(name)

	// Reserved byte, then version.
	var rv [5]byte
	if _, err := io.ReadFull(r, rv[:]); err != nil {
		return h, fmt.Errorf("%w: version: %v", ErrCorruptFormat, err)
	}
	if [4]byte(rv[1:]) != Version {
		return h, fmt.Errorf("%w: unsupported version %q", ErrCorruptFormat, rv[1:])
	}

	var dims [7]byte
	if _, err := io.ReadFull(r, dims[:]); err != nil {
		return h, fmt.Errorf("%w: dimensions: %v", ErrCorruptFormat, err)
	}
	n := int(dims[0])
	h.Size = canvas.Size{
		X: int(binary.LittleEndian.Uint16(dims[1:3])),
		Y: int(binary.LittleEndian.Uint16(dims[3:5])),
		Z: int(binary.LittleEndian.Uint16(dims[5:7])),
	}
	if err := h.Size.Validate(); err != nil {
		return h, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
	}

	pal := make([]byte, n*3)
	if _, err := io.ReadFull(r, pal); err != nil {
		return h, fmt.Errorf("%w: palette: %v", ErrCorruptFormat, err)
	}
	h.Palette = make([]canvas.Color, n)
	for i := range h.Palette {
		h.Palette[i] = canvas.Color{R: pal[i*3], G: pal[i*3+1], B: pal[i*3+2]}
	}
	return h, nil
}

func WriteFile(path string, c *canvas.Canvas) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Write(f, c); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func ReadFile(path string, id int64, mode canvas.IndexMode) (*canvas.Canvas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, id, mode)
}
