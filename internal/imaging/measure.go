package imaging

import (
	"fmt"
	"math"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// Point is a pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DistanceResult contains a measurement between two pixels
type DistanceResult struct {
	DistancePixels float64 `json:"distance_pixels"`
	DeltaX         int     `json:"delta_x"`
	DeltaY         int     `json:"delta_y"`
	AngleDegrees   float64 `json:"angle_degrees"`
	// Ground coordinates of the two pixel centres.
	From [2]float64 `json:"from_ground"`
	To   [2]float64 `json:"to_ground"`
	// DistanceGround is in transform units, meters for projected CRSs.
	DistanceGround float64 `json:"distance_ground"`
}

// MeasureDistance measures between the centres of two pixels of r, both in
// pixels and on the ground through the raster's affine transform.
func MeasureDistance(r *raster.Raster, x1, y1, x2, y2 int) (*DistanceResult, error) {
	for _, p := range []Point{{x1, y1}, {x2, y2}} {
		if p.X < 0 || p.Y < 0 || p.X >= r.Width() || p.Y >= r.Height() {
			return nil, fmt.Errorf("point (%d,%d) outside raster bounds %dx%d", p.X, p.Y, r.Width(), r.Height())
		}
	}

	deltaX := x2 - x1
	deltaY := y2 - y1
	distance := math.Hypot(float64(deltaX), float64(deltaY))
	// 0 = east, 90 = down the image
	angle := math.Atan2(float64(deltaY), float64(deltaX)) * 180 / math.Pi

	fx, fy := r.Transform.Apply(float64(x1)+0.5, float64(y1)+0.5)
	tx, ty := r.Transform.Apply(float64(x2)+0.5, float64(y2)+0.5)

	return &DistanceResult{
		DistancePixels: math.Round(distance*100) / 100,
		DeltaX:         deltaX,
		DeltaY:         deltaY,
		AngleDegrees:   math.Round(angle*10) / 10,
		From:           [2]float64{fx, fy},
		To:             [2]float64{tx, ty},
		DistanceGround: math.Round(math.Hypot(tx-fx, ty-fy)*100) / 100,
	}, nil
}
