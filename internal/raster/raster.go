package raster

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file layouts the active backend cannot decode.
var ErrUnsupported = errors.New("unsupported raster layout")

// GeoKeys holds the raw GeoTIFF key directory and its parameter tags. They
// are copied unchanged into written masks so the CRS travels with the data.
type GeoKeys struct {
	Directory []uint16  `json:"directory,omitempty"`
	Doubles   []float64 `json:"doubles,omitempty"`
	ASCII     string    `json:"ascii,omitempty"`
}

// Georef is the geospatial part of a raster: everything a written mask
// inherits from its reference file.
type Georef struct {
	Transform    Affine
	HasTransform bool
	// Resolution from explicit metadata (ModelPixelScale or GDAL), zero when absent.
	ResX, ResY float64
	GeoKeys    *GeoKeys
	// WKT is only populated by the GDAL backend.
	WKT    string
	NoData *float64
}

// PixelAreaKm2 returns the ground area of one pixel. Explicit resolution
// fields win over the transform when both are present.
func (g Georef) PixelAreaKm2() float64 {
	if g.ResX > 0 && g.ResY > 0 {
		return g.ResX * g.ResY / 1e6
	}
	return g.Transform.PixelAreaKm2()
}

// Resolution returns the pixel size in ground units.
func (g Georef) Resolution() (float64, float64) {
	if g.ResX > 0 && g.ResY > 0 {
		return g.ResX, g.ResY
	}
	return g.Transform.Resolution()
}

// Raster is one decoded file: one or more bands of equal shape.
type Raster struct {
	Georef
	Path   string
	Format string
	Bands  []*Grid
	// MaxValue is the full-scale sample value of the source encoding
	// (255 for 8-bit, 65535 for 16-bit and 4294967295 for 32-bit unsigned
	// samples, 1 for signed and float data).
	MaxValue float64
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int {
	if len(r.Bands) == 0 {
		return 0
	}
	return r.Bands[0].Width
}

// Height returns the raster height in pixels.
func (r *Raster) Height() int {
	if len(r.Bands) == 0 {
		return 0
	}
	return r.Bands[0].Height
}

// Band returns band n, 1-based like rasterio and GDAL.
func (r *Raster) Band(n int) (*Grid, error) {
	if n < 1 || n > len(r.Bands) {
		return nil, fmt.Errorf("band %d out of range: %s has %d band(s)", n, r.Path, len(r.Bands))
	}
	return r.Bands[n-1], nil
}

// Open reads a raster file, choosing the decoder by extension.
func Open(path string) (*Raster, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return ReadGeoTIFF(path)
	case ".png", ".jpg", ".jpeg", ".gif":
		return ReadImage(path)
	default:
		return nil, fmt.Errorf("%w: unknown extension %q", ErrUnsupported, filepath.Ext(path))
	}
}

// ReadGeoTIFF decodes a GeoTIFF using the backend selected at build time.
func ReadGeoTIFF(path string) (*Raster, error) {
	r, err := readGeoTIFF(path)
	if err != nil {
		return nil, err
	}
	r.Path = path
	r.Format = "geotiff"
	return r, nil
}

// WriteGeoTIFF writes a single-band uint8 GeoTIFF with the georeferencing of ref.
func WriteGeoTIFF(path string, width, height int, pix []uint8, ref Georef) error {
	if len(pix) != width*height {
		return fmt.Errorf("pixel buffer has %d samples, want %d", len(pix), width*height)
	}
	return writeGeoTIFF(path, width, height, pix, ref)
}
