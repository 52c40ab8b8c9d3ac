package raster

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ReadImage decodes a PNG/JPEG/GIF into one grayscale band or three RGB
// bands in the source's native range. The result has no georeferencing.
func ReadImage(path string) (*Raster, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	r := FromImage(img)
	r.Path = path
	r.Format = "png"
	return r, nil
}

// FromImage converts a decoded image into bands. Gray images yield a single
// band; everything else yields R, G, B. 16-bit sources keep 16-bit values.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	r := &Raster{Georef: Georef{Transform: Identity}, MaxValue: 255}
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		r.MaxValue = 65535
	}

	gray := false
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		gray = true
	}

	n := 3
	if gray {
		n = 1
	}
	for i := 0; i < n; i++ {
		r.Bands = append(r.Bands, NewGrid(w, h))
	}

	scale := 1.0 / 257.0
	if r.MaxValue == 65535 {
		scale = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			r.Bands[0].Data[i] = float64(cr) * scale
			if !gray {
				r.Bands[1].Data[i] = float64(cg) * scale
				r.Bands[2].Data[i] = float64(cb) * scale
			}
		}
	}
	return r
}

// ReadPNGMask reads an image used as a mask source: channel 0 scaled to [0,1].
func ReadPNGMask(path string) (*Grid, error) {
	r, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	return NormalizedBand(r, 1)
}

// NormalizedBand returns band n divided by the raster's full-scale value.
func NormalizedBand(r *Raster, n int) (*Grid, error) {
	band, err := r.Band(n)
	if err != nil {
		return nil, err
	}
	maxValue := r.MaxValue
	if maxValue <= 0 {
		maxValue = 1
	}
	return band.Map(func(v float64) float64 { return v / maxValue }), nil
}
