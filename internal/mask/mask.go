// Package mask holds binary water masks and the aligner that brings two masks
// onto one pixel grid before they are compared.
//
// A mask value of 1 means water is present at that pixel, 0 means it is not.
// Masks are produced from continuous grids (NDWI values, model confidences,
// decoded mask files) by a strict greater-than threshold, 0.5 unless the
// caller says otherwise.
package mask

import (
	"errors"
	"fmt"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// DefaultThreshold binarizes confidences and decoded mask files.
const DefaultThreshold = 0.5

// ErrShapeMismatch is returned when two masks that must share a pixel grid do not.
var ErrShapeMismatch = errors.New("mask shapes differ")

// Mask is a binary grid stored row-major, values in {0,1}.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates an all-zero mask.
func New(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// Binarize returns 1 where the sample is strictly greater than threshold.
// NaN samples are never water.
func Binarize(g *raster.Grid, threshold float64) *Mask {
	m := New(g.Width, g.Height)
	for i, v := range g.Data {
		if v > threshold {
			m.Pix[i] = 1
		}
	}
	return m
}

// At returns the value at (x, y).
func (m *Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// Set stores v (any non-zero value becomes 1) at (x, y).
func (m *Mask) Set(x, y int, v uint8) {
	if v != 0 {
		v = 1
	}
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of water pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		n += int(v)
	}
	return n
}

// Grid converts the mask to a 0/1 float grid.
func (m *Mask) Grid() *raster.Grid {
	g := raster.NewGrid(m.Width, m.Height)
	for i, v := range m.Pix {
		g.Data[i] = float64(v)
	}
	return g
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	c := New(m.Width, m.Height)
	copy(c.Pix, m.Pix)
	return c
}

// SameShape reports whether m and o have identical dimensions.
func (m *Mask) SameShape(o *Mask) bool {
	return m.Width == o.Width && m.Height == o.Height
}

// Equal reports whether both masks have the same shape and content.
func (m *Mask) Equal(o *Mask) bool {
	if !m.SameShape(o) {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Shape formats the dimensions as (rows, cols).
func (m *Mask) Shape() string {
	return fmt.Sprintf("(%d, %d)", m.Height, m.Width)
}

// CheckShapes returns ErrShapeMismatch when a and b differ in size.
func CheckShapes(a, b *Mask) error {
	if !a.SameShape(b) {
		return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, a.Shape(), b.Shape())
	}
	return nil
}
