package canvas

import (
	"math"
	"math/rand/v2"
)

func EmptyGrid(size Size) []byte {
	return make([]byte, size.Volume())
}

// RandomGrid returns a grid in mode's index order whose fill density falls
// off with height along a logistic curve, leaving a rough floor to build on.
// Colors are drawn uniformly from 1..colors.
func RandomGrid(size Size, mode IndexMode, colors int, rng *rand.Rand) []byte {
	grid := EmptyGrid(size)
	if colors <= 0 {
		return grid
	}
	if colors > MaxColors {
		colors = MaxColors
	}
	for x := 0; x < size.X; x++ {
		for y := 0; y < size.Y; y++ {
			rate := 1 / (1 + math.Exp(float64(y)/float64(size.Y)*16-1))
			for z := 0; z < size.Z; z++ {
				if rng.Float64() < rate {
					grid[mode.index(size, x, y, z)] = uint8(1 + rng.IntN(colors))
				}
			}
		}
	}
	return grid
}
