package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// createTestImage writes a solid-colour PNG into the test's temp dir and
// returns its path.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "test-image.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// createTestGeoTIFF writes a single-band mask GeoTIFF with 10 m pixels.
func createTestGeoTIFF(t *testing.T, width, height int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-mask.tif")
	ref := raster.Georef{
		Transform:    raster.Affine{A: 10, C: 500000, E: -10, F: 3100000},
		HasTransform: true,
	}
	pix := make([]uint8, width*height)
	for i := range pix {
		pix[i] = uint8(i % 2)
	}
	if err := raster.WriteGeoTIFF(path, width, height, pix, ref); err != nil {
		t.Fatalf("failed to write GeoTIFF: %v", err)
	}
	return path
}

func TestNewRasterCache(t *testing.T) {
	cache := NewRasterCache()
	if cache == nil {
		t.Fatal("NewRasterCache returned nil")
	}
	if cache.Len() != 0 {
		t.Fatalf("new cache has %d entries", cache.Len())
	}
}

func TestRasterCache_Load(t *testing.T) {
	cache := NewRasterCache()
	path := createTestImage(t, 40, 30, color.RGBA{255, 0, 0, 255})

	r1, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r1.Width() != 40 || r1.Height() != 30 {
		t.Errorf("unexpected dimensions: got %dx%d, want 40x30", r1.Width(), r1.Height())
	}

	r2, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if r1 != r2 {
		t.Error("second Load did not return cached raster")
	}
}

func TestRasterCache_Load_Errors(t *testing.T) {
	cache := NewRasterCache()

	if _, err := cache.Load("/nonexistent/path/to/band.tif"); err == nil {
		t.Error("Load should fail for non-existent file")
	}

	path := filepath.Join(t.TempDir(), "invalid.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := cache.Load(path); err == nil {
		t.Error("Load should fail for invalid image data")
	}
	if cache.Len() != 0 {
		t.Errorf("failed loads were cached: %d entries", cache.Len())
	}
}

func TestRasterCache_ClearAndEvict(t *testing.T) {
	cache := NewRasterCache()
	a := createTestImage(t, 8, 8, color.RGBA{0, 255, 0, 255})
	b := createTestGeoTIFF(t, 4, 4)

	for _, p := range []string{a, b} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load(%s) failed: %v", p, err)
		}
	}

	cache.Evict(a)
	if cache.Len() != 1 {
		t.Errorf("Evict: %d entries remain, want 1", cache.Len())
	}
	cache.Evict("/nonexistent/path")

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Clear did not empty cache: %d entries remain", cache.Len())
	}
}

func TestRasterCache_ConcurrentAccess(t *testing.T) {
	cache := NewRasterCache()
	path := createTestImage(t, 50, 50, color.RGBA{128, 128, 128, 255})

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load failed: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("cache has %d entries, want 1", cache.Len())
	}
}

func TestLoadRasterInfo(t *testing.T) {
	cache := NewRasterCache()

	tests := []struct {
		name       string
		path       string
		wantW      int
		wantH      int
		wantBands  int
		wantFormat string
		wantGeo    bool
		wantArea   float64
	}{
		{
			name:       "png",
			path:       createTestImage(t, 12, 9, color.RGBA{1, 2, 3, 255}),
			wantW:      12,
			wantH:      9,
			wantBands:  3,
			wantFormat: "png",
			wantGeo:    false,
			wantArea:   1e-6,
		},
		{
			name:       "geotiff",
			path:       createTestGeoTIFF(t, 6, 5),
			wantW:      6,
			wantH:      5,
			wantBands:  1,
			wantFormat: "geotiff",
			wantGeo:    true,
			wantArea:   0.0001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := LoadRasterInfo(cache, tt.path)
			if err != nil {
				t.Fatalf("LoadRasterInfo failed: %v", err)
			}
			if info.Width != tt.wantW || info.Height != tt.wantH {
				t.Errorf("size: got %dx%d, want %dx%d", info.Width, info.Height, tt.wantW, tt.wantH)
			}
			if info.Bands != tt.wantBands {
				t.Errorf("bands: got %d, want %d", info.Bands, tt.wantBands)
			}
			if info.Format != tt.wantFormat {
				t.Errorf("format: got %q, want %q", info.Format, tt.wantFormat)
			}
			if info.Georeferenced != tt.wantGeo {
				t.Errorf("georeferenced: got %v, want %v", info.Georeferenced, tt.wantGeo)
			}
			if diff := info.PixelAreaKm2 - tt.wantArea; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("pixel area: got %g, want %g", info.PixelAreaKm2, tt.wantArea)
			}
			if info.FileSizeBytes <= 0 {
				t.Errorf("file size: got %d", info.FileSizeBytes)
			}
		})
	}
}
