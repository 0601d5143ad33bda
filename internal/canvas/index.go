package canvas

import (
	"fmt"
	"strings"
)

// IndexMode selects how a coordinate maps to a flat cell index.
type IndexMode int

const (
	// IndexLinear is row-major over (x, y, z): x*Y*Z + y*Z + z.
	IndexLinear IndexMode = iota
	// IndexLegacy is x*X*X + y*Y + z. It agrees with IndexLinear on cubic
	// canvases and is kept for grids written by older servers.
	IndexLegacy
)

func (m IndexMode) String() string {
	switch m {
	case IndexLinear:
		return "linear"
	case IndexLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("IndexMode(%d)", int(m))
	}
}

func ParseIndexMode(s string) (IndexMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return IndexLinear, nil
	case "legacy":
		return IndexLegacy, nil
	default:
		return 0, fmt.Errorf("unknown index mode %q", s)
	}
}

func (m IndexMode) index(s Size, x, y, z int) int {
	if m == IndexLegacy {
		return x*s.X*s.X + y*s.Y + z
	}
	return x*s.Y*s.Z + y*s.Z + z
}

// Coord is the inverse of the index mapping.
func (m IndexMode) Coord(s Size, i int) (x, y, z int) {
	if m == IndexLegacy {
		x = i / (s.X * s.X)
		r := i % (s.X * s.X)
		return x, r / s.Y, r % s.Y
	}
	x = i / (s.Y * s.Z)
	r := i % (s.Y * s.Z)
	return x, r / s.Z, r % s.Z
}
