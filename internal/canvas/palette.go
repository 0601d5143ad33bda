package canvas

import (
	"errors"
	"fmt"
)

// MaxColors is the largest palette a grid byte can address (index 0 is empty).
const MaxColors = 255

var ErrInvalidPalette = errors.New("invalid palette")

type Color struct {
	R, G, B uint8
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette is an ordered color list. Grid value v (1..Len) refers to
// Colors[v-1].
type Palette struct {
	ID     int64
	Colors []Color
}

func (p Palette) Len() int { return len(p.Colors) }

// Valid reports whether color is a paintable value for this palette.
func (p Palette) Valid(color uint8) bool {
	return color >= 1 && int(color) <= len(p.Colors)
}

func (p Palette) Hex() []string {
	out := make([]string, len(p.Colors))
	for i, c := range p.Colors {
		out[i] = c.Hex()
	}
	return out
}

// Pack flattens the palette to RGB triples, the layout of the Palette.colors
// column.
func (p Palette) Pack() []byte {
	out := make([]byte, 0, len(p.Colors)*3)
	for _, c := range p.Colors {
		out = append(out, c.R, c.G, c.B)
	}
	return out
}

func UnpackPalette(id int64, b []byte) (Palette, error) {
	if len(b)%3 != 0 {
		return Palette{}, fmt.Errorf("%w: %d bytes is not a multiple of 3", ErrInvalidPalette, len(b))
	}
	if len(b)/3 > MaxColors {
		return Palette{}, fmt.Errorf("%w: %d colors", ErrInvalidPalette, len(b)/3)
	}
	p := Palette{ID: id, Colors: make([]Color, 0, len(b)/3)}
	for i := 0; i+2 < len(b); i += 3 {
		p.Colors = append(p.Colors, Color{R: b[i], G: b[i+1], B: b[i+2]})
	}
	return p, nil
}

// DefaultPalette is the 32-color palette every new server starts with.
func DefaultPalette() Palette {
	hex := [...]uint32{
		0x6d001a, 0xbe0039, 0xff4500, 0xffa800,
		0xffd635, 0xfff8b8, 0x00a368, 0x00cc78,
		0x7eed56, 0x00756f, 0x009eaa, 0x00ccc0,
		0x2450a4, 0x3690ea, 0x51e9f4, 0x493ac1,
		0x6a5cff, 0x94b3ff, 0x811e9f, 0xb44ac0,
		0xe4abff, 0xde107f, 0xff3881, 0xff99aa,
		0x6d482f, 0x9c6926, 0xffb470, 0x000000,
		0x515252, 0x898d90, 0xd4d7d9, 0xffffff,
	}
	p := Palette{ID: 0, Colors: make([]Color, len(hex))}
	for i, v := range hex {
		p.Colors[i] = Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
	}
	return p
}
