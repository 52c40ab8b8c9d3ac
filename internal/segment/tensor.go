package segment

import (
	"fmt"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// Tensor is a channel-first image: Data[c*Height*Width + y*Width + x].
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float64
}

// NewTensor allocates a zero tensor.
func NewTensor(channels, height, width int) *Tensor {
	return &Tensor{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float64, channels*height*width),
	}
}

// Plane returns the samples of channel c. The slice aliases t.Data.
func (t *Tensor) Plane(c int) []float64 {
	n := t.Height * t.Width
	return t.Data[c*n : (c+1)*n]
}

// At returns the sample of channel c at (x, y).
func (t *Tensor) At(c, x, y int) float64 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

// Set stores v in channel c at (x, y).
func (t *Tensor) Set(c, x, y int, v float64) {
	t.Data[(c*t.Height+y)*t.Width+x] = v
}

// FromRaster stacks every band of r into a tensor, dividing samples by scale.
// predict uses scale 255 for 8-bit imagery.
func FromRaster(r *raster.Raster, scale float64) (*Tensor, error) {
	if len(r.Bands) == 0 {
		return nil, fmt.Errorf("%w: raster %s has no bands", ErrShape, r.Path)
	}
	if scale == 0 {
		scale = 1
	}
	t := NewTensor(len(r.Bands), r.Height(), r.Width())
	for c, band := range r.Bands {
		if band.Width != t.Width || band.Height != t.Height {
			return nil, fmt.Errorf("%w: band %d is %s, band 1 is (%d, %d)", ErrShape, c+1, band.Shape(), t.Height, t.Width)
		}
		plane := t.Plane(c)
		for i, v := range band.Data {
			plane[i] = v / scale
		}
	}
	return t, nil
}
