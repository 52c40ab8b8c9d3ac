package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
)

// CropResult is a PNG rendering returned inline to MCP clients.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

func checkRegion(b image.Rectangle, x1, y1, x2, y2 int) error {
	if x1 < b.Min.X || y1 < b.Min.Y || x2 > b.Max.X || y2 > b.Max.Y {
		return fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			x1, y1, x2, y2, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	if x1 >= x2 || y1 >= y2 {
		return fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}
	return nil
}

// CropMask returns the sub-mask [x1,x2) x [y1,y2).
func CropMask(m *mask.Mask, x1, y1, x2, y2 int) (*mask.Mask, error) {
	if err := checkRegion(image.Rect(0, 0, m.Width, m.Height), x1, y1, x2, y2); err != nil {
		return nil, err
	}
	out := mask.New(x2-x1, y2-y1)
	for y := y1; y < y2; y++ {
		copy(out.Pix[(y-y1)*out.Width:(y-y1+1)*out.Width], m.Pix[y*m.Width+x1:y*m.Width+x2])
	}
	return out, nil
}

// Preview crops img to the region and scales it, returning an inline PNG.
// A zero region (all coordinates 0) keeps the whole image.
func Preview(img image.Image, x1, y1, x2, y2 int, scale float64) (*CropResult, error) {
	var out image.Image = img
	if x1 != 0 || y1 != 0 || x2 != 0 || y2 != 0 {
		if err := checkRegion(img.Bounds(), x1, y1, x2, y2); err != nil {
			return nil, err
		}
		out = imaging.Crop(img, image.Rect(x1, y1, x2, y2))
	}

	if scale != 1.0 && scale > 0 {
		newWidth := max(1, int(float64(out.Bounds().Dx())*scale))
		newHeight := max(1, int(float64(out.Bounds().Dy())*scale))
		// Nearest neighbour keeps class colours crisp.
		out = imaging.Resize(out, newWidth, newHeight, imaging.NearestNeighbor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &CropResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// RegionBounds resolves a named region of a width x height grid.
func RegionBounds(region string, w, h int) (x1, y1, x2, y2 int, err error) {
	midX := w / 2
	midY := h / 2

	switch region {
	case "", "full":
		return 0, 0, w, h, nil
	case "top-left":
		return 0, 0, midX, midY, nil
	case "top-right":
		return midX, 0, w, midY, nil
	case "bottom-left":
		return 0, midY, midX, h, nil
	case "bottom-right":
		return midX, midY, w, h, nil
	case "top-half":
		return 0, 0, w, midY, nil
	case "bottom-half":
		return 0, midY, w, h, nil
	case "left-half":
		return 0, 0, midX, h, nil
	case "right-half":
		return midX, 0, w, h, nil
	case "center":
		qW := w / 4
		qH := h / 4
		return qW, qH, w - qW, h - qH, nil
	default:
		return 0, 0, 0, 0, fmt.Errorf("unknown region: %s", region)
	}
}

// OpenImage decodes an image file for previewing or painting over.
func OpenImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return img, nil
}
