package imaging

import (
	"image"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
)

// Shoreline returns the water pixels of m that touch land.
//
// A water pixel is on the shoreline when at least one of its four direct
// neighbours is land. Neighbours outside the grid are ignored, so a lake cut
// by the scene edge is not outlined along that edge.
//
// # Use
//
// Shorelines are drawn over growth visualizations and counted per lake by the
// detection package. The count of shoreline pixels times the pixel size is a
// rough perimeter; it overestimates diagonal shores by up to √2.
func Shoreline(m *mask.Mask) *mask.Mask {
	out := mask.New(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) == 0 {
				continue
			}
			if isLand(m, x-1, y) || isLand(m, x+1, y) || isLand(m, x, y-1) || isLand(m, x, y+1) {
				out.Pix[y*m.Width+x] = 1
			}
		}
	}
	return out
}

func isLand(m *mask.Mask, x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.At(x, y) == 0
}

// OutlineRGB draws the shoreline of m onto img in white. img must have the
// mask's shape.
func OutlineRGB(img *image.NRGBA, m *mask.Mask) {
	edge := Shoreline(m)
	for i, v := range edge.Pix {
		if v == 1 {
			copy(img.Pix[4*i:4*i+4], []uint8{255, 255, 255, 255})
		}
	}
}
