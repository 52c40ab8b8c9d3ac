package ndwi

import (
	"fmt"
	"math"

	"github.com/ironsheep/lake-growth-mcp/internal/growth"
	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// ScanRange is a half-open threshold interval [Start, Stop) walked in Step
// increments.
type ScanRange struct {
	Start float64 `json:"start" yaml:"start"`
	Stop  float64 `json:"stop" yaml:"stop"`
	Step  float64 `json:"step" yaml:"step"`
}

// DefaultScanRange covers slightly negative to slightly positive NDWI, where
// thin or turbid glacial water sits.
var DefaultScanRange = ScanRange{Start: -0.05, Stop: 0.05, Step: 0.005}

// Thresholds lists the thresholds of the range. Each one is Start + i*Step so
// rounding does not accumulate.
func (r ScanRange) Thresholds() ([]float64, error) {
	if r.Step <= 0 || math.IsNaN(r.Step) {
		return nil, fmt.Errorf("scan step must be positive, got %g", r.Step)
	}
	if r.Stop <= r.Start {
		return nil, fmt.Errorf("scan stop %g must be greater than start %g", r.Stop, r.Start)
	}
	n := int(math.Ceil((r.Stop - r.Start) / r.Step))
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		t := r.Start + float64(i)*r.Step
		if t >= r.Stop {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// ScanStep is the growth measured at one threshold.
type ScanStep struct {
	Threshold float64 `json:"threshold"`
	Pixels    int     `json:"pixels"`
	AreaKm2   float64 `json:"area_km2"`
}

// ScanResult holds every step and the selected one. Best is -1 when no
// threshold produced any growth.
type ScanResult struct {
	Steps []ScanStep `json:"steps"`
	Best  int        `json:"best"`
	// BestMask is the growth mask at the selected threshold.
	BestMask *mask.Mask `json:"-"`
}

// Found reports whether any threshold produced growth.
func (r *ScanResult) Found() bool {
	return r.Best >= 0
}

// BestStep returns the selected step. It panics when nothing was found.
func (r *ScanResult) BestStep() ScanStep {
	return r.Steps[r.Best]
}

// Scan thresholds both index grids at every threshold of rng and measures the
// water that is new in later. The threshold with the strictly greatest area
// is selected; on ties the earliest wins, and when every area is zero nothing
// is selected.
func Scan(earlier, later *raster.Grid, pixelAreaKm2 float64, rng ScanRange) (*ScanResult, error) {
	if !earlier.SameShape(later) {
		return nil, fmt.Errorf("%w: %s vs %s", mask.ErrShapeMismatch, earlier.Shape(), later.Shape())
	}
	thresholds, err := rng.Thresholds()
	if err != nil {
		return nil, err
	}

	res := &ScanResult{Best: -1}
	best := 0.0
	for _, t := range thresholds {
		g, err := growth.Compare(WaterMask(earlier, t), WaterMask(later, t))
		if err != nil {
			return nil, err
		}
		px := g.Count()
		step := ScanStep{Threshold: t, Pixels: px, AreaKm2: float64(px) * pixelAreaKm2}
		res.Steps = append(res.Steps, step)
		if step.AreaKm2 > best {
			best = step.AreaKm2
			res.Best = len(res.Steps) - 1
			res.BestMask = g
		}
	}
	return res, nil
}
