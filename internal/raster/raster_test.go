//go:build !gdal

package raster

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utm10m() Georef {
	return Georef{
		Transform:    Affine{A: 10, C: 500000, E: -10, F: 3100000},
		HasTransform: true,
		GeoKeys: &GeoKeys{
			Directory: []uint16{1, 1, 0, 2, 1024, 0, 1, 1, 3072, 0, 1, 32645},
		},
	}
}

func TestAffine_PixelAreaKm2(t *testing.T) {
	tr := Affine{A: 10, E: -10}
	assert.InDelta(t, 0.0001, tr.PixelAreaKm2(), 1e-12)

	x, y := tr.Resolution()
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)
}

func TestAffine_GDALRoundTrip(t *testing.T) {
	tr := Affine{A: 30, B: 0.5, C: 100, D: -0.25, E: -30, F: 200}
	assert.Equal(t, tr, FromGDAL(tr.GDAL()))

	gx, gy := tr.Apply(2, 3)
	assert.InDelta(t, 30*2+0.5*3+100, gx, 1e-9)
	assert.InDelta(t, -0.25*2-30*3+200, gy, 1e-9)
}

func TestGeoref_PrefersExplicitResolution(t *testing.T) {
	g := Georef{Transform: Affine{A: 10, E: -10}, ResX: 20, ResY: 20}
	assert.InDelta(t, 0.0004, g.PixelAreaKm2(), 1e-12)

	g.ResX, g.ResY = 0, 0
	assert.InDelta(t, 0.0001, g.PixelAreaKm2(), 1e-12)
}

func TestWriteGeoTIFF_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.tif")
	pix := []uint8{
		0, 1, 1,
		0, 0, 1,
	}
	require.NoError(t, WriteGeoTIFF(path, 3, 2, pix, utm10m()))

	r, err := ReadGeoTIFF(path)
	require.NoError(t, err)
	assert.Equal(t, "geotiff", r.Format)
	assert.Equal(t, 3, r.Width())
	assert.Equal(t, 2, r.Height())
	require.Len(t, r.Bands, 1)
	for i, v := range pix {
		assert.Equal(t, float64(v), r.Bands[0].Data[i], "pixel %d", i)
	}

	assert.True(t, r.HasTransform)
	assert.Equal(t, utm10m().Transform, r.Transform)
	require.NotNil(t, r.GeoKeys)
	assert.Equal(t, utm10m().GeoKeys.Directory, r.GeoKeys.Directory)
	assert.InDelta(t, 0.0001, r.PixelAreaKm2(), 1e-12)
}

func TestWriteGeoTIFF_RotatedTransform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rot.tif")
	ref := Georef{Transform: Affine{A: 10, B: 1, C: 5, D: 1, E: -10, F: 7}, HasTransform: true}
	require.NoError(t, WriteGeoTIFF(path, 2, 2, []uint8{1, 0, 0, 1}, ref))

	r, err := ReadGeoTIFF(path)
	require.NoError(t, err)
	assert.Equal(t, ref.Transform, r.Transform)
}

func TestWriteGeoTIFF_BufferMismatch(t *testing.T) {
	err := WriteGeoTIFF(filepath.Join(t.TempDir(), "bad.tif"), 4, 4, []uint8{1, 2, 3}, Georef{})
	assert.Error(t, err)
}

func TestReadGeoTIFF_Float32(t *testing.T) {
	vals := []float32{0.25, -0.5, 1.5, 3}
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	ref := utm10m()
	ref.GeoKeys = nil
	nd := -9999.0
	ref.NoData = &nd
	data := encodeStripTIFF(2, 2, 1, 32, sampleFormatIEEEFP, buf, ref)

	path := filepath.Join(t.TempDir(), "float.tif")
	require.NoError(t, os.WriteFile(path, data, 0644))

	r, err := ReadGeoTIFF(path)
	require.NoError(t, err)
	require.Len(t, r.Bands, 1)
	for i, v := range vals {
		assert.InDelta(t, float64(v), r.Bands[0].Data[i], 1e-7)
	}
	assert.Equal(t, 1.0, r.MaxValue)
	require.NotNil(t, r.NoData)
	assert.Equal(t, -9999.0, *r.NoData)
}

func TestReadGeoTIFF_MultiBandGrayscale(t *testing.T) {
	// Two pixels, three interleaved uint8 samples each, tagged MinIsBlack.
	pix := []byte{
		10, 20, 30,
		40, 50, 60,
	}
	data := encodeStripTIFF(2, 1, 3, 8, sampleFormatUint, pix, utm10m())
	path := filepath.Join(t.TempDir(), "stack.tif")
	require.NoError(t, os.WriteFile(path, data, 0644))

	r, err := ReadGeoTIFF(path)
	require.NoError(t, err)
	require.Len(t, r.Bands, 3)
	assert.Equal(t, []float64{10, 40}, r.Bands[0].Data)
	assert.Equal(t, []float64{20, 50}, r.Bands[1].Data)
	assert.Equal(t, []float64{30, 60}, r.Bands[2].Data)
	assert.Equal(t, 255.0, r.MaxValue)
	assert.True(t, r.HasTransform)
}

func TestReadGeoTIFF_MultiBandUint16(t *testing.T) {
	vals := []uint16{1000, 2000, 3000, 4000, 5000, 65535, 7, 8}
	buf := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	data := encodeStripTIFF(2, 1, 4, 16, sampleFormatUint, buf, Georef{})
	path := filepath.Join(t.TempDir(), "stack16.tif")
	require.NoError(t, os.WriteFile(path, data, 0644))

	r, err := ReadGeoTIFF(path)
	require.NoError(t, err)
	require.Len(t, r.Bands, 4)
	assert.Equal(t, []float64{1000, 5000}, r.Bands[0].Data)
	assert.Equal(t, []float64{4000, 8}, r.Bands[3].Data)
	assert.Equal(t, 65535.0, r.MaxValue)
}

func TestReadGeoTIFF_MissingFile(t *testing.T) {
	_, err := ReadGeoTIFF("/nonexistent/band.tif")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadGeoTIFF_NotATIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.tif")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a tiff"), 0644))
	_, err := ReadGeoTIFF(path)
	assert.Error(t, err)
}

func TestParseDirectory_BigTIFF(t *testing.T) {
	data := []byte{'I', 'I', 43, 0, 8, 0, 0, 0}
	_, err := parseDirectory(data)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mask.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestReadPNGMask_Gray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 255})
	img.SetGray(1, 0, color.Gray{Y: 0})

	g, err := ReadPNGMask(writePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, g.Data)
}

func TestReadPNGMask_RGBUsesFirstChannel(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 0, color.NRGBA{R: 0, G: 255, B: 255, A: 255})

	g, err := ReadPNGMask(writePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, g.Data)
}

func TestOpen_UnknownExtension(t *testing.T) {
	_, err := Open("scene.jp2")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestGrid_Helpers(t *testing.T) {
	g, err := GridFromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 3.0, g.At(0, 1))
	g.Set(1, 1, 9)
	assert.Equal(t, 9.0, g.Data[3])

	lo, hi := g.MinMax()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 9.0, hi)
	assert.Equal(t, "(2, 2)", g.Shape())

	c := g.Clone()
	c.Set(0, 0, 100)
	assert.Equal(t, 1.0, g.At(0, 0))

	_, err = GridFromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}
