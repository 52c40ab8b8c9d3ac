package imaging

import (
	"fmt"
	"os"
	"sync"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// RasterCache provides thread-safe caching of decoded rasters to avoid
// redundant disk reads.
//
// The cache stores *raster.Raster values keyed by their file path. Once a
// raster is loaded, subsequent Load() calls for the same path return the
// cached copy without disk I/O. Callers must treat cached rasters as
// read-only; they are shared between requests.
//
// RasterCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Multispectral scenes are large. Cached rasters remain in memory until
// explicitly removed via Evict() or Clear().
//
// # Example Usage
//
//	cache := imaging.NewRasterCache()
//	r, err := cache.Load("/data/may_band2.tif")
//	if err != nil {
//	    return err
//	}
//	green, _ := r.Band(1)
type RasterCache struct {
	mu      sync.RWMutex
	rasters map[string]*raster.Raster
}

// NewRasterCache creates and initializes a new empty raster cache.
func NewRasterCache() *RasterCache {
	return &RasterCache{
		rasters: make(map[string]*raster.Raster),
	}
}

// Load retrieves a raster from the cache or decodes it from disk if not
// cached.
//
// Parameters:
//   - path: Path to a GeoTIFF (.tif, .tiff) or an image (.png, .jpg, .gif).
//
// Returns:
//   - *raster.Raster: The decoded bands and georeferencing.
//   - error: Non-nil if the file cannot be read or its layout is unsupported.
//
// The raster is cached using the exact path string provided. Different paths
// to the same file (e.g., relative vs absolute) result in separate entries.
func (c *RasterCache) Load(path string) (*raster.Raster, error) {
	c.mu.RLock()
	if r, ok := c.rasters[path]; ok {
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	r, err := raster.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load raster: %w", err)
	}

	c.mu.Lock()
	c.rasters[path] = r
	c.mu.Unlock()

	return r, nil
}

// Len returns the number of cached rasters.
func (c *RasterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rasters)
}

// Clear removes all rasters from the cache.
func (c *RasterCache) Clear() {
	c.mu.Lock()
	c.rasters = make(map[string]*raster.Raster)
	c.mu.Unlock()
}

// Evict removes a specific raster from the cache by its path. Unknown paths
// are ignored.
func (c *RasterCache) Evict(path string) {
	c.mu.Lock()
	delete(c.rasters, path)
	c.mu.Unlock()
}

// RasterInfo contains metadata about a raster file.
type RasterInfo struct {
	// Width and Height are the raster size in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Bands is the number of bands (1 for grayscale, 3 for RGB imagery).
	Bands int `json:"bands"`

	// Format is "geotiff" or "png".
	Format string `json:"format"`

	// Georeferenced is true when the file carries an affine transform.
	Georeferenced bool `json:"georeferenced"`

	// Transform is the affine transform in rasterio order (a, b, c, d, e, f).
	Transform [6]float64 `json:"transform"`

	// PixelSizeX and PixelSizeY are the ground resolution in transform units.
	PixelSizeX float64 `json:"pixel_size_x"`
	PixelSizeY float64 `json:"pixel_size_y"`

	// PixelAreaKm2 is the area of one pixel, assuming meters.
	PixelAreaKm2 float64 `json:"pixel_area_km2"`

	// MaxValue is the full-scale sample value (255, 65535, or 1 for float data).
	MaxValue float64 `json:"max_value"`

	// NoData is the nodata sentinel when the file declares one.
	NoData *float64 `json:"nodata,omitempty"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadRasterInfo loads a raster through the cache and describes it.
//
// # Pixel Area
//
// The pixel area comes from explicit resolution metadata when the file has
// it, otherwise from |a*e| of the affine transform. Files without any
// georeferencing report the identity transform and a pixel area of 1e-6 km²
// (one square unit).
func LoadRasterInfo(cache *RasterCache, path string) (*RasterInfo, error) {
	r, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	t := r.Transform
	rx, ry := r.Resolution()
	return &RasterInfo{
		Width:         r.Width(),
		Height:        r.Height(),
		Bands:         len(r.Bands),
		Format:        r.Format,
		Georeferenced: r.HasTransform,
		Transform:     [6]float64{t.A, t.B, t.C, t.D, t.E, t.F},
		PixelSizeX:    rx,
		PixelSizeY:    ry,
		PixelAreaKm2:  r.PixelAreaKm2(),
		MaxValue:      r.MaxValue,
		NoData:        r.NoData,
		FileSizeBytes: stat.Size(),
	}, nil
}
