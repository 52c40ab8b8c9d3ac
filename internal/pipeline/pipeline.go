// Package pipeline runs the lake-growth workflows end to end: read the
// inputs named by the configuration, compute masks and growth, write the
// output files, and print a human-readable report.
//
// Every workflow returns a Report as well as printing, so the MCP server can
// hand the same results back as JSON.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/lake-growth-mcp/internal/config"
	"github.com/ironsheep/lake-growth-mcp/internal/detection"
	"github.com/ironsheep/lake-growth-mcp/internal/growth"
	"github.com/ironsheep/lake-growth-mcp/internal/imaging"
	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/ndwi"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
	"github.com/ironsheep/lake-growth-mcp/internal/segment"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// Loader opens rasters. *imaging.RasterCache satisfies it.
type Loader interface {
	Load(path string) (*raster.Raster, error)
}

type fileLoader struct{}

func (fileLoader) Load(path string) (*raster.Raster, error) {
	return raster.Open(path)
}

// History records analyses and raises alerts. *store.Store satisfies it.
type History interface {
	RecordAnalysis(ctx context.Context, a *store.Analysis) error
	CreateAlert(ctx context.Context, a *store.Alert) error
}

// Pipeline runs workflows against one configuration.
type Pipeline struct {
	cfg *config.Config
	out io.Writer

	// Loader opens input rasters. Defaults to reading the file each time.
	Loader Loader
	// History, when set, receives every growth analysis.
	History History
}

// New returns a pipeline printing its report to out.
func New(cfg *config.Config, out io.Writer) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{cfg: cfg, out: out, Loader: fileLoader{}}
}

// Report is the structured result of a workflow.
type Report struct {
	Workflow     string                 `json:"workflow"`
	PixelAreaKm2 float64                `json:"pixel_area_km2,omitempty"`
	Scan         *ndwi.ScanResult       `json:"scan,omitempty"`
	Threshold    *float64               `json:"threshold,omitempty"`
	Growth       *growth.Result         `json:"growth,omitempty"`
	Lakes        *detection.LakesResult `json:"lakes,omitempty"`
	NewLakes     *detection.LakesResult `json:"new_lakes,omitempty"`
	Training     *segment.TrainResult   `json:"training,omitempty"`
	Patches      int                    `json:"patches,omitempty"`
	Outputs      []string               `json:"outputs,omitempty"`
	AnalysisID   string                 `json:"analysis_id,omitempty"`
	AlertID      string                 `json:"alert_id,omitempty"`
	// Message is set when the workflow ends without a result, such as a scan
	// that found no growth.
	Message string `json:"message,omitempty"`

	// Mask is the main mask the workflow produced (growth or prediction).
	Mask *mask.Mask `json:"-"`
}

func (p *Pipeline) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *Pipeline) load(path, what string) (*raster.Raster, error) {
	if path == "" {
		return nil, fmt.Errorf("no %s path configured", what)
	}
	r, err := p.Loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	log.Debugf("loaded %s %s: %dx%d, %d band(s)", what, path, r.Width(), r.Height(), len(r.Bands))
	return r, nil
}

// maskValues returns band 1 in mask units: image files are scaled to [0,1],
// GeoTIFF samples are used as stored.
func maskValues(r *raster.Raster) (*raster.Grid, error) {
	if r.Format == "geotiff" {
		return r.Band(1)
	}
	return raster.NormalizedBand(r, 1)
}

// writeMask writes m as a GeoTIFF carrying ref, or as a black and white PNG
// for any other extension.
func writeMask(path string, m *mask.Mask, ref raster.Georef) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		if err := ensureDir(path); err != nil {
			return err
		}
		return raster.WriteGeoTIFF(path, m.Width, m.Height, m.Pix, ref)
	default:
		return imaging.SavePNG(path, imaging.MaskImage(m))
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// record stores the analysis and raises an alert when the growth reaches the
// configured threshold. Without a History it does nothing.
func (p *Pipeline) record(ctx context.Context, rep *Report, a *store.Analysis) error {
	if p.History == nil {
		return nil
	}
	if err := p.History.RecordAnalysis(ctx, a); err != nil {
		return err
	}
	rep.AnalysisID = a.ID
	log.Infow("analysis recorded", "id", a.ID, "kind", a.Kind, "growth_km2", a.GrowthKm2)

	limit := p.cfg.AlertThresholdKm2
	if limit <= 0 || a.GrowthKm2 < limit {
		return nil
	}
	alert := &store.Alert{
		AnalysisID: a.ID,
		Severity:   store.Severity(a.GrowthKm2, limit),
		Message:    fmt.Sprintf("lake growth %.4f km² reached the alert threshold of %.4f km²", a.GrowthKm2, limit),
		GrowthKm2:  a.GrowthKm2,
	}
	if err := p.History.CreateAlert(ctx, alert); err != nil {
		return err
	}
	rep.AlertID = alert.ID
	p.printf("Alert raised (%s): %s\n", alert.Severity, alert.Message)
	return nil
}
