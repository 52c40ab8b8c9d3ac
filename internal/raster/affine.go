package raster

import (
	"math"
)

// Affine maps pixel (col, row) to ground (x, y):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the transform rasterio assigns to files without georeferencing.
var Identity = Affine{A: 1, E: 1}

// FromGDAL converts a GDAL geotransform (c, a, b, f, d, e) to an Affine.
func FromGDAL(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// GDAL returns the GDAL geotransform ordering of the coefficients.
func (t Affine) GDAL() [6]float64 {
	return [6]float64{t.C, t.A, t.B, t.F, t.D, t.E}
}

// Apply maps a pixel position to ground coordinates.
func (t Affine) Apply(col, row float64) (float64, float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Resolution returns the pixel width and height in ground units.
func (t Affine) Resolution() (float64, float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// IsRectilinear reports whether the transform has no rotation or shear terms.
func (t Affine) IsRectilinear() bool {
	return t.B == 0 && t.D == 0
}

// PixelAreaKm2 returns |a*e| / 1e6, the area of one pixel in km² when the
// transform is in meters.
func (t Affine) PixelAreaKm2() float64 {
	return math.Abs(t.A*t.E) / 1e6
}
