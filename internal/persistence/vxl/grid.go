package vxl

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// CompressGrid gzips a flattened grid.
func CompressGrid(grid []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(grid); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressGrid inflates a grid blob and checks it holds exactly n cells.
func DecompressGrid(blob []byte, n int) ([]byte, error) {
	return decompress(bytes.NewReader(blob), n)
}

func decompress(r io.Reader, n int) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrCorruptFormat, err)
	}
	defer zr.Close()
	// Read one byte past n to catch oversized grids without inflating them.
	grid, err := io.ReadAll(io.LimitReader(zr, int64(n)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: grid: %v", ErrCorruptFormat, err)
	}
	if len(grid) != n {
		return nil, fmt.Errorf("%w: grid has %d cells, want %d", ErrCorruptFormat, len(grid), n)
	}
	return grid, nil
}
