//go:build !gdal

package raster

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"golang.org/x/image/tiff"
)

func readGeoTIFF(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster: %w", err)
	}

	dir, err := parseDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r := &Raster{Georef: dir.georef()}

	if dir.rawSamples() {
		r.Bands, r.MaxValue, err = dir.decodeRawStrips(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return r, nil
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}
	spp := int(dir.uint(tagSamplesPerPixel, 1))
	r.Bands, r.MaxValue, err = bandsFromImage(img, spp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func writeGeoTIFF(path string, width, height int, pix []uint8, ref Georef) error {
	if err := os.WriteFile(path, encodeMaskTIFF(width, height, pix, ref), 0644); err != nil {
		return fmt.Errorf("failed to write raster: %w", err)
	}
	return nil
}

// bandsFromImage splits a decoded image into per-sample grids without
// rescaling, so 16-bit reflectance values survive intact.
func bandsFromImage(img image.Image, spp int) ([]*Grid, float64, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	newBands := func(n int) []*Grid {
		out := make([]*Grid, n)
		for i := range out {
			out[i] = NewGrid(w, h)
		}
		return out
	}
	channels := spp
	if channels < 1 {
		channels = 1
	}
	if channels > 4 {
		return nil, 0, fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, spp)
	}

	switch m := img.(type) {
	case *image.Gray:
		bands := newBands(1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				bands[0].Data[y*w+x] = float64(m.Pix[y*m.Stride+x])
			}
		}
		return bands, 255, nil
	case *image.Gray16:
		bands := newBands(1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := y*m.Stride + 2*x
				bands[0].Data[y*w+x] = float64(uint16(m.Pix[p])<<8 | uint16(m.Pix[p+1]))
			}
		}
		return bands, 65535, nil
	case *image.Paletted:
		bands := newBands(1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				bands[0].Data[y*w+x] = float64(m.Pix[y*m.Stride+x])
			}
		}
		return bands, 255, nil
	case *image.RGBA:
		return split8(m.Pix, m.Stride, w, h, newBands(channels)), 255, nil
	case *image.NRGBA:
		return split8(m.Pix, m.Stride, w, h, newBands(channels)), 255, nil
	case *image.RGBA64:
		return split16(m.Pix, m.Stride, w, h, newBands(channels)), 65535, nil
	case *image.NRGBA64:
		return split16(m.Pix, m.Stride, w, h, newBands(channels)), 65535, nil
	default:
		return nil, 0, fmt.Errorf("%w: image type %T", ErrUnsupported, img)
	}
}

func split8(pix []uint8, stride, w, h int, bands []*Grid) []*Grid {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*stride + 4*x
			for c, g := range bands {
				g.Data[y*w+x] = float64(pix[p+c])
			}
		}
	}
	return bands
}

func split16(pix []uint8, stride, w, h int, bands []*Grid) []*Grid {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*stride + 8*x
			for c, g := range bands {
				g.Data[y*w+x] = float64(uint16(pix[p+2*c])<<8 | uint16(pix[p+2*c+1]))
			}
		}
	}
	return bands
}
