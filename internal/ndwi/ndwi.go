// Package ndwi computes the Normalized Difference Water Index from a green and
// a near-infrared band, thresholds it into water masks, and scans a range of
// thresholds for the one that yields the largest growth between two dates.
package ndwi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// Epsilon keeps the denominator non-zero where both bands are zero.
const Epsilon = 1e-10

// Compute returns (green - nir) / (green + nir + Epsilon) per pixel. When the
// bands differ in shape, nir is resampled onto green's grid first.
func Compute(green, nir *raster.Grid) *raster.Grid {
	nir = mask.Align(green, nir)
	out := raster.NewGrid(green.Width, green.Height)
	for i, g := range green.Data {
		n := nir.Data[i]
		out.Data[i] = (g - n) / (g + n + Epsilon)
	}
	return out
}

// WaterMask returns 1 where the index is strictly above threshold.
func WaterMask(index *raster.Grid, threshold float64) *mask.Mask {
	return mask.Binarize(index, threshold)
}

// Difference returns later - earlier per pixel. The grids must share a shape.
func Difference(later, earlier *raster.Grid) (*raster.Grid, error) {
	if !later.SameShape(earlier) {
		return nil, fmt.Errorf("%w: %s vs %s", mask.ErrShapeMismatch, later.Shape(), earlier.Shape())
	}
	out := raster.NewGrid(later.Width, later.Height)
	for i := range out.Data {
		out.Data[i] = later.Data[i] - earlier.Data[i]
	}
	return out, nil
}

// Summary describes the distribution of index values in a grid.
type Summary struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Valid      int     `json:"valid_pixels"`
	WaterRatio float64 `json:"water_ratio"`
}

// Stats summarizes the finite samples of index. WaterRatio is the fraction of
// finite samples above threshold.
func Stats(index *raster.Grid, threshold float64) Summary {
	vals := make([]float64, 0, len(index.Data))
	water := 0
	for _, v := range index.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		vals = append(vals, v)
		if v > threshold {
			water++
		}
	}
	if len(vals) == 0 {
		return Summary{}
	}

	s := Summary{Min: vals[0], Max: vals[0], Valid: len(vals)}
	for _, v := range vals {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	if len(vals) == 1 {
		s.StdDev = 0
	}
	s.WaterRatio = float64(water) / float64(len(vals))
	return s
}
