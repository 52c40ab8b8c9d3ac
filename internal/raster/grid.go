package raster

import (
	"fmt"
)

// Grid is a 2-D grid of samples stored row-major.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
	}
}

// GridFromRows builds a grid from a slice of equal-length rows.
func GridFromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return NewGrid(0, 0), nil
	}
	width := len(rows[0])
	g := NewGrid(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d samples, want %d", y, len(row), width)
		}
		copy(g.Data[y*width:(y+1)*width], row)
	}
	return g, nil
}

// At returns the sample at (x, y).
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

// Set stores v at (x, y).
func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Shape formats the dimensions as (rows, cols) for messages.
func (g *Grid) Shape() string {
	return fmt.Sprintf("(%d, %d)", g.Height, g.Width)
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := &Grid{Width: g.Width, Height: g.Height, Data: make([]float64, len(g.Data))}
	copy(c.Data, g.Data)
	return c
}

// Map returns a new grid with fn applied to every sample.
func (g *Grid) Map(fn func(float64) float64) *Grid {
	out := NewGrid(g.Width, g.Height)
	for i, v := range g.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// MinMax returns the smallest and largest sample. An empty grid returns 0, 0.
func (g *Grid) MinMax() (float64, float64) {
	if len(g.Data) == 0 {
		return 0, 0
	}
	lo, hi := g.Data[0], g.Data[0]
	for _, v := range g.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
