package pipeline

import (
	"context"
	"fmt"

	"github.com/ironsheep/lake-growth-mcp/internal/growth"
	"github.com/ironsheep/lake-growth-mcp/internal/imaging"
	"github.com/ironsheep/lake-growth-mcp/internal/ndwi"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// index computes NDWI from a green and a NIR raster. The green raster is
// returned as the reference grid.
func (p *Pipeline) index(greenPath, nirPath string) (*raster.Grid, *raster.Raster, error) {
	green, err := p.load(greenPath, "green band")
	if err != nil {
		return nil, nil, err
	}
	nir, err := p.load(nirPath, "NIR band")
	if err != nil {
		return nil, nil, err
	}
	g, err := green.Band(1)
	if err != nil {
		return nil, nil, err
	}
	n, err := nir.Band(1)
	if err != nil {
		return nil, nil, err
	}
	if !g.SameShape(n) {
		p.printf("Resizing NIR %s to match Green shape %s...\n", n.Shape(), g.Shape())
	}
	return ndwi.Compute(g, n), green, nil
}

// NDWIGrowth computes NDWI for both dates, renders the index previews and the
// change map, scans the threshold range and, when any threshold shows growth,
// writes the best growth mask as a GeoTIFF georeferenced like the earlier
// green band plus a PNG rendering of it.
func (p *Pipeline) NDWIGrowth(ctx context.Context) (*Report, error) {
	in := p.cfg.Inputs
	may, mayGreen, err := p.index(in.MayGreen, in.MayNIR)
	if err != nil {
		return nil, err
	}
	june, _, err := p.index(in.JuneGreen, in.JuneNIR)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{Workflow: "ndwi_growth"}
	rep.PixelAreaKm2 = mayGreen.PixelAreaKm2()
	resX, resY := mayGreen.Resolution()
	p.printf("Pixel resolution: %gm x %gm | Area: %.6f km²\n", resX, resY, rep.PixelAreaKm2)

	diff, err := ndwi.Difference(june, may)
	if err != nil {
		return nil, err
	}
	previews := []struct {
		name string
		save func(string) error
	}{
		{p.cfg.Outputs.NDWIMay, func(path string) error { return imaging.SavePNG(path, imaging.NDWIImage(may)) }},
		{p.cfg.Outputs.NDWIJune, func(path string) error { return imaging.SavePNG(path, imaging.NDWIImage(june)) }},
		{p.cfg.Outputs.DiffMap, func(path string) error { return imaging.SavePNG(path, imaging.DifferenceImage(diff)) }},
	}
	for _, pv := range previews {
		if pv.name == "" {
			continue
		}
		path := p.cfg.Output(pv.name)
		if err := pv.save(path); err != nil {
			return nil, err
		}
		rep.Outputs = append(rep.Outputs, path)
	}

	scan, err := ndwi.Scan(may, june, rep.PixelAreaKm2, p.cfg.Scan)
	if err != nil {
		return nil, err
	}
	rep.Scan = scan

	p.printf("\nThreshold scan summary:\n")
	for _, s := range scan.Steps {
		p.printf("  Threshold %.3f → Pixels: %d, Area: %.4f km²\n", s.Threshold, s.Pixels, s.AreaKm2)
	}

	analysis := &store.Analysis{
		Kind:          store.KindNDWIScan,
		EarlierSource: in.MayGreen,
		LaterSource:   in.JuneGreen,
		PixelAreaKm2:  rep.PixelAreaKm2,
	}

	if !scan.Found() {
		rep.Message = "No lake growth detected for any threshold in range."
		p.printf("\n%s\n", rep.Message)
		return rep, p.record(ctx, rep, analysis)
	}

	best := scan.BestStep()
	rep.Threshold = &best.Threshold
	rep.Mask = scan.BestMask
	earlier := ndwi.WaterMask(may, best.Threshold)
	later := ndwi.WaterMask(june, best.Threshold)
	res := growth.Summarize(earlier, later, scan.BestMask, rep.PixelAreaKm2)
	rep.Growth = &res

	p.printf("\nBest NDWI Threshold: %.3f\n", best.Threshold)
	p.printf("Estimated lake growth: %.4f sq km\n", best.AreaKm2)

	maskPath := p.cfg.Output(p.cfg.Outputs.GrowthMask)
	if err := writeMask(maskPath, scan.BestMask, mayGreen.Georef); err != nil {
		return nil, fmt.Errorf("failed to save growth mask: %w", err)
	}
	visualPath := p.cfg.Output(p.cfg.Outputs.GrowthVisual)
	if err := imaging.SavePNG(visualPath, imaging.GrowthRed(scan.BestMask)); err != nil {
		return nil, err
	}
	rep.Outputs = append(rep.Outputs, maskPath, visualPath)
	p.printf("Saved: %s\n", visualPath)
	p.printf("Saved: %s\n", maskPath)

	threshold := best.Threshold
	analysis.Threshold = &threshold
	analysis.GrowthPixels = res.Pixels
	analysis.GrowthKm2 = res.AreaKm2
	analysis.EarlierPixels = res.EarlierPixels
	analysis.LaterPixels = res.LaterPixels
	analysis.OutputPath = maskPath
	return rep, p.record(ctx, rep, analysis)
}

// NDWIStats computes the index for one date and summarizes it at the
// configured threshold.
func (p *Pipeline) NDWIStats(greenPath, nirPath string) (ndwi.Summary, error) {
	idx, _, err := p.index(greenPath, nirPath)
	if err != nil {
		return ndwi.Summary{}, err
	}
	s := ndwi.Stats(idx, p.cfg.NDWIThreshold)
	p.printf("NDWI min %.4f max %.4f mean %.4f std %.4f | water above %.3f: %.2f%%\n",
		s.Min, s.Max, s.Mean, s.StdDev, p.cfg.NDWIThreshold, s.WaterRatio*100)
	return s, nil
}
