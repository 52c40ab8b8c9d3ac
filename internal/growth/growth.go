// Package growth compares two binary water masks of the same scene and
// reports the water that appeared between the earlier and the later date.
package growth

import (
	"github.com/ironsheep/lake-growth-mcp/internal/mask"
)

// Result is the measured growth between two masks.
type Result struct {
	Pixels        int     `json:"pixels"`
	AreaKm2       float64 `json:"area_km2"`
	PixelAreaKm2  float64 `json:"pixel_area_km2"`
	EarlierPixels int     `json:"earlier_pixels"`
	LaterPixels   int     `json:"later_pixels"`
	EarlierKm2    float64 `json:"earlier_km2"`
	LaterKm2      float64 `json:"later_km2"`
	// PercentChange is the net change in water area relative to the earlier
	// date. Zero when the earlier mask has no water.
	PercentChange float64 `json:"percent_change"`
}

// Compare returns the growth mask: 1 where later is water and earlier is not.
func Compare(earlier, later *mask.Mask) (*mask.Mask, error) {
	if err := mask.CheckShapes(earlier, later); err != nil {
		return nil, err
	}
	out := mask.New(later.Width, later.Height)
	for i, v := range later.Pix {
		if v == 1 && earlier.Pix[i] == 0 {
			out.Pix[i] = 1
		}
	}
	return out, nil
}

// Measure compares the masks and converts pixel counts to area.
func Measure(earlier, later *mask.Mask, pixelAreaKm2 float64) (*mask.Mask, Result, error) {
	g, err := Compare(earlier, later)
	if err != nil {
		return nil, Result{}, err
	}
	return g, Summarize(earlier, later, g, pixelAreaKm2), nil
}

// Summarize builds a Result from masks that are already compared.
func Summarize(earlier, later, growthMask *mask.Mask, pixelAreaKm2 float64) Result {
	r := Result{
		Pixels:        growthMask.Count(),
		PixelAreaKm2:  pixelAreaKm2,
		EarlierPixels: earlier.Count(),
		LaterPixels:   later.Count(),
	}
	r.AreaKm2 = float64(r.Pixels) * pixelAreaKm2
	r.EarlierKm2 = float64(r.EarlierPixels) * pixelAreaKm2
	r.LaterKm2 = float64(r.LaterPixels) * pixelAreaKm2
	if r.EarlierPixels > 0 {
		r.PercentChange = float64(r.LaterPixels-r.EarlierPixels) / float64(r.EarlierPixels) * 100
	}
	return r
}
