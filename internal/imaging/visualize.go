package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// Display ranges for the index renderings.
const (
	NDWIRange       = 0.3
	DifferenceRange = 0.5
)

// GrowthRGB renders the three masks into one image: red where water is new,
// green (180) where the earlier scene had water, blue where the later one has.
func GrowthRGB(earlier, later, growth *mask.Mask) (*image.NRGBA, error) {
	if err := mask.CheckShapes(earlier, later); err != nil {
		return nil, err
	}
	if err := mask.CheckShapes(earlier, growth); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, earlier.Width, earlier.Height))
	for i := range earlier.Pix {
		img.Pix[4*i] = growth.Pix[i] * 255
		img.Pix[4*i+1] = earlier.Pix[i] * 180
		img.Pix[4*i+2] = later.Pix[i] * 255
		img.Pix[4*i+3] = 255
	}
	return img, nil
}

// GrowthRed renders a growth mask with the Reds colormap.
func GrowthRed(growth *mask.Mask) *image.NRGBA {
	return Colorize(growth.Grid(), Reds, 0, 1)
}

// NDWIImage renders an index grid with BrBG over ±NDWIRange.
func NDWIImage(index *raster.Grid) *image.NRGBA {
	return Colorize(index, BrBG, -NDWIRange, NDWIRange)
}

// DifferenceImage renders an index change grid with coolwarm over
// ±DifferenceRange.
func DifferenceImage(diff *raster.Grid) *image.NRGBA {
	return Colorize(diff, Coolwarm, -DifferenceRange, DifferenceRange)
}

// MaskImage renders a mask as 8-bit grayscale, water white.
func MaskImage(m *mask.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		img.Pix[i] = v * 255
	}
	return img
}

// Overlay paints the growth pixels over base in colorHex, blended at
// opacity (0..1). Base is resized to the mask's shape when they differ.
func Overlay(base image.Image, growth *mask.Mask, colorHex string, opacity float64) (image.Image, error) {
	c, err := parseHexColor(colorHex)
	if err != nil {
		return nil, fmt.Errorf("invalid overlay color: %w", err)
	}
	if opacity < 0 || opacity > 1 {
		return nil, fmt.Errorf("opacity must be within [0,1], got %g", opacity)
	}

	bg := imaging.Clone(base)
	if bg.Rect.Dx() != growth.Width || bg.Rect.Dy() != growth.Height {
		bg = imaging.Resize(bg, growth.Width, growth.Height, imaging.Box)
	}

	fg := imaging.Clone(bg)
	paint := color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
	for y := 0; y < growth.Height; y++ {
		for x := 0; x < growth.Width; x++ {
			if growth.At(x, y) == 1 {
				fg.SetNRGBA(x, y, paint)
			}
		}
	}
	return blend.Opacity(bg, fg, opacity), nil
}

// SavePNG writes img to path, creating parent directories.
func SavePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}
