package mask

import (
	"math"

	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// tap is one source sample's share of an output sample.
type tap struct {
	index  int
	weight float64
}

// areaWeights maps each of dst output positions to the src positions its
// footprint [i*src/dst, (i+1)*src/dst) overlaps. Weights are the overlap
// lengths divided by the footprint length, so each row of taps sums to 1.
func areaWeights(src, dst int) [][]tap {
	scale := float64(src) / float64(dst)
	taps := make([][]tap, dst)
	for i := range taps {
		lo := float64(i) * scale
		hi := float64(i+1) * scale
		first := int(math.Floor(lo))
		last := int(math.Ceil(hi))
		if last > src {
			last = src
		}
		for s := first; s < last; s++ {
			overlap := math.Min(hi, float64(s+1)) - math.Max(lo, float64(s))
			if overlap <= 1e-12 {
				continue
			}
			taps[i] = append(taps[i], tap{index: s, weight: overlap / scale})
		}
	}
	return taps
}

// Resample returns g resampled to width x height with area interpolation:
// every output sample is the mean of the source it covers, each source
// sample weighted by its overlap with the output footprint. Shrinking
// preserves the grid's total area-weighted sum; enlarging by an integer
// factor replicates source samples. A grid already of that shape is
// returned as a copy.
func Resample(g *raster.Grid, width, height int) *raster.Grid {
	if g.Width == width && g.Height == height {
		return g.Clone()
	}

	out := raster.NewGrid(width, height)
	lo, hi := g.MinMax()
	if hi == lo || math.IsNaN(lo) || math.IsNaN(hi) {
		for i := range out.Data {
			out.Data[i] = lo
		}
		return out
	}

	// Rows first: g.Height x width.
	xTaps := areaWeights(g.Width, width)
	tmp := make([]float64, g.Height*width)
	for y := 0; y < g.Height; y++ {
		row := g.Data[y*g.Width : (y+1)*g.Width]
		for x, taps := range xTaps {
			var sum float64
			for _, t := range taps {
				sum += row[t.index] * t.weight
			}
			tmp[y*width+x] = sum
		}
	}

	yTaps := areaWeights(g.Height, height)
	for y, taps := range yTaps {
		for x := 0; x < width; x++ {
			var sum float64
			for _, t := range taps {
				sum += tmp[t.index*width+x] * t.weight
			}
			out.Data[y*width+x] = sum
		}
	}
	return out
}

// Align brings secondary onto primary's shape. It resamples the continuous
// grid, so callers binarize after aligning.
func Align(primary, secondary *raster.Grid) *raster.Grid {
	if secondary.SameShape(primary) {
		return secondary
	}
	log.Warnf("Resizing mask from %s to %s", secondary.Shape(), primary.Shape())
	return Resample(secondary, primary.Width, primary.Height)
}

// AlignMask resamples a binary mask onto primary's shape and re-binarizes it
// at DefaultThreshold.
func AlignMask(primary, secondary *Mask) *Mask {
	if secondary.SameShape(primary) {
		return secondary
	}
	g := Align(primary.Grid(), secondary.Grid())
	return Binarize(g, DefaultThreshold)
}
