package pipeline

import (
	"context"
	"fmt"

	"github.com/ironsheep/lake-growth-mcp/internal/detection"
	"github.com/ironsheep/lake-growth-mcp/internal/growth"
	"github.com/ironsheep/lake-growth-mcp/internal/imaging"
	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// maskPair is a binarized earlier/later mask pair on the earlier mask's grid.
type maskPair struct {
	earlier, later *mask.Mask
	// ref is the earlier mask's raster; it supplies pixel area and
	// georeferencing for outputs.
	ref *raster.Raster
}

// loadMasks reads the earlier (GeoTIFF) and later (usually a predicted PNG)
// masks, resamples the later one onto the earlier grid when the shapes
// differ, and binarizes both.
func (p *Pipeline) loadMasks() (*maskPair, error) {
	mayR, err := p.load(p.cfg.Inputs.MayMask, "earlier mask")
	if err != nil {
		return nil, err
	}
	juneR, err := p.load(p.cfg.Inputs.JuneMask, "later mask")
	if err != nil {
		return nil, err
	}
	may, err := maskValues(mayR)
	if err != nil {
		return nil, err
	}
	june, err := maskValues(juneR)
	if err != nil {
		return nil, err
	}
	if !may.SameShape(june) {
		p.printf("Resizing June mask from %s to %s\n", june.Shape(), may.Shape())
		june = mask.Align(may, june)
	}
	t := p.cfg.MaskThreshold
	return &maskPair{
		earlier: mask.Binarize(may, t),
		later:   mask.Binarize(june, t),
		ref:     mayR,
	}, nil
}

func (p *Pipeline) maskAnalysis(kind string, res growth.Result, output string) *store.Analysis {
	return &store.Analysis{
		Kind:          kind,
		EarlierSource: p.cfg.Inputs.MayMask,
		LaterSource:   p.cfg.Inputs.JuneMask,
		GrowthPixels:  res.Pixels,
		GrowthKm2:     res.AreaKm2,
		PixelAreaKm2:  res.PixelAreaKm2,
		EarlierPixels: res.EarlierPixels,
		LaterPixels:   res.LaterPixels,
		OutputPath:    output,
	}
}

// ModelGrowth measures the growth between the earlier and later masks and
// prints the area.
func (p *Pipeline) ModelGrowth(ctx context.Context) (*Report, error) {
	pair, err := p.loadMasks()
	if err != nil {
		return nil, err
	}
	gm, res, err := growth.Measure(pair.earlier, pair.later, pair.ref.PixelAreaKm2())
	if err != nil {
		return nil, err
	}
	rep := &Report{Workflow: "model_growth", PixelAreaKm2: res.PixelAreaKm2, Growth: &res, Mask: gm}
	p.printf("Estimated lake growth: %.2f sq. km\n", res.AreaKm2)
	p.printf("  Growth pixels: %d | Water pixels %d → %d (%+.1f%%)\n",
		res.Pixels, res.EarlierPixels, res.LaterPixels, res.PercentChange)
	return rep, p.record(ctx, rep, p.maskAnalysis(store.KindModelGrowth, res, ""))
}

// GrowthMask writes the growth between the earlier and later masks as a
// GeoTIFF with the earlier mask's georeferencing.
func (p *Pipeline) GrowthMask(ctx context.Context) (*Report, error) {
	pair, err := p.loadMasks()
	if err != nil {
		return nil, err
	}
	gm, res, err := growth.Measure(pair.earlier, pair.later, pair.ref.PixelAreaKm2())
	if err != nil {
		return nil, err
	}
	path := p.cfg.Output(p.cfg.Outputs.GrowthMask)
	if err := writeMask(path, gm, pair.ref.Georef); err != nil {
		return nil, fmt.Errorf("failed to save growth mask: %w", err)
	}
	rep := &Report{
		Workflow:     "growth_mask",
		PixelAreaKm2: res.PixelAreaKm2,
		Growth:       &res,
		Outputs:      []string{path},
		Mask:         gm,
	}
	p.printf("Lake growth mask saved at: %s\n", path)
	return rep, p.record(ctx, rep, p.maskAnalysis(store.KindGrowthMask, res, path))
}

// Visualize writes the RGB rendering of the earlier, later, and growth masks.
// When outline is set, the shoreline of the later water is drawn over it.
func (p *Pipeline) Visualize(ctx context.Context, outline bool) (*Report, error) {
	pair, err := p.loadMasks()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gm, res, err := growth.Measure(pair.earlier, pair.later, pair.ref.PixelAreaKm2())
	if err != nil {
		return nil, err
	}
	img, err := imaging.GrowthRGB(pair.earlier, pair.later, gm)
	if err != nil {
		return nil, err
	}
	if outline {
		imaging.OutlineRGB(img, pair.later)
	}
	path := p.cfg.Output(p.cfg.Outputs.GrowthRGB)
	if err := imaging.SavePNG(path, img); err != nil {
		return nil, err
	}
	p.printf("Saved lake growth visualization to %s\n", path)
	return &Report{
		Workflow:     "visualize",
		PixelAreaKm2: res.PixelAreaKm2,
		Growth:       &res,
		Outputs:      []string{path},
		Mask:         gm,
	}, nil
}

// Lakes lists the water bodies of the later mask and those that are entirely
// new since the earlier one.
func (p *Pipeline) Lakes(ctx context.Context) (*Report, error) {
	pair, err := p.loadMasks()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	px := pair.ref.PixelAreaKm2()
	minPixels := p.cfg.MinLakePixels
	all := detection.DetectLakes(pair.later, px, minPixels)
	fresh, err := detection.NewLakes(pair.earlier, pair.later, px, minPixels)
	if err != nil {
		return nil, err
	}

	p.printf("Water bodies: %d (%.4f km², %d below %d px discarded)\n",
		all.Count, all.TotalKm2, all.Discarded, minPixels)
	p.printf("New lakes: %d (%.4f km²)\n", fresh.Count, fresh.TotalKm2)
	for _, l := range fresh.Lakes {
		edge := ""
		if l.TouchesEdge {
			edge = " [edge]"
		}
		p.printf("  #%d  %6d px  %.4f km²  at (%.0f, %.0f)  bounds %d,%d-%d,%d%s\n",
			l.ID, l.Pixels, l.AreaKm2, l.Centroid[0], l.Centroid[1],
			l.Bounds.X1, l.Bounds.Y1, l.Bounds.X2, l.Bounds.Y2, edge)
	}
	return &Report{
		Workflow:     "lakes",
		PixelAreaKm2: px,
		Lakes:        all,
		NewLakes:     fresh,
	}, nil
}

// Overlay paints the growth between the masks over the base image and writes
// the result to output as PNG.
func (p *Pipeline) Overlay(ctx context.Context, base, output, colorHex string, opacity float64) (*Report, error) {
	pair, err := p.loadMasks()
	if err != nil {
		return nil, err
	}
	gm, res, err := growth.Measure(pair.earlier, pair.later, pair.ref.PixelAreaKm2())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bg, err := imaging.OpenImage(base)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Overlay(bg, gm, colorHex, opacity)
	if err != nil {
		return nil, err
	}
	path := p.cfg.Output(output)
	if err := imaging.SavePNG(path, img); err != nil {
		return nil, err
	}
	p.printf("Saved growth overlay to %s\n", path)
	return &Report{
		Workflow:     "overlay",
		PixelAreaKm2: res.PixelAreaKm2,
		Growth:       &res,
		Outputs:      []string{path},
		Mask:         gm,
	}, nil
}
