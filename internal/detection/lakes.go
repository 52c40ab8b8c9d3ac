package detection

import (
	"sort"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
)

// Bounds represents a rectangular bounding box in pixel coordinates.
//
// The coordinate convention follows standard image bounds:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (exclusive)
	Y2 int `json:"y2"` // Bottom edge (exclusive)
}

// Width returns X2 - X1.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns Y2 - Y1.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Lake is one connected body of water in a mask.
type Lake struct {
	// ID numbers lakes from 1 in the order they are returned.
	ID int `json:"id"`

	// Pixels is the number of water pixels in the lake.
	Pixels int `json:"pixels"`

	// AreaKm2 is Pixels times the pixel area.
	AreaKm2 float64 `json:"area_km2"`

	// Bounds is the bounding box enclosing every pixel of the lake.
	Bounds Bounds `json:"bounds"`

	// Centroid is the mean pixel position, in fractional pixels.
	Centroid [2]float64 `json:"centroid"`

	// ShorelinePixels counts lake pixels with a land pixel directly beside
	// them.
	ShorelinePixels int `json:"shoreline_pixels"`

	// TouchesEdge is true when the lake reaches the scene border, so its
	// true extent may be larger than measured.
	TouchesEdge bool `json:"touches_edge"`

	// seed is one pixel of the lake, used to revisit it.
	seed Point
}

// LakesResult contains all lakes detected in a mask.
type LakesResult struct {
	// Lakes is sorted by area, largest first.
	Lakes []Lake `json:"lakes"`

	// Count is the number of lakes returned.
	Count int `json:"count"`

	// TotalPixels and TotalKm2 sum the returned lakes.
	TotalPixels int     `json:"total_pixels"`
	TotalKm2    float64 `json:"total_km2"`

	// Discarded counts water bodies smaller than the minimum size.
	Discarded int `json:"discarded"`
}

// DetectLakes groups the water pixels of m into 4-connected bodies.
//
// Parameters:
//   - m: Binary water mask.
//   - pixelAreaKm2: Ground area of one pixel.
//   - minPixels: Bodies with fewer pixels are discarded as noise. Values
//     below 1 keep everything.
//
// # Algorithm
//
// Every unvisited water pixel seeds an iterative flood fill over its four
// direct neighbours. Diagonal contact does not join two bodies, matching how
// a thin dam or moraine one pixel wide separates lakes on the ground.
func DetectLakes(m *mask.Mask, pixelAreaKm2 float64, minPixels int) *LakesResult {
	visited := make([]bool, len(m.Pix))
	result := &LakesResult{Lakes: make([]Lake, 0)}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := y*m.Width + x
			if m.Pix[i] == 0 || visited[i] {
				continue
			}
			lake := floodFill(m, visited, x, y)
			if lake.Pixels < minPixels {
				result.Discarded++
				continue
			}
			lake.AreaKm2 = float64(lake.Pixels) * pixelAreaKm2
			result.Lakes = append(result.Lakes, lake)
		}
	}

	sort.SliceStable(result.Lakes, func(i, j int) bool {
		return result.Lakes[i].Pixels > result.Lakes[j].Pixels
	})
	for i := range result.Lakes {
		result.Lakes[i].ID = i + 1
		result.TotalPixels += result.Lakes[i].Pixels
		result.TotalKm2 += result.Lakes[i].AreaKm2
	}
	result.Count = len(result.Lakes)
	return result
}

// NewLakes returns the lakes of later that share no pixel with water in
// earlier: bodies that appeared between the two dates rather than grew.
func NewLakes(earlier, later *mask.Mask, pixelAreaKm2 float64, minPixels int) (*LakesResult, error) {
	if err := mask.CheckShapes(earlier, later); err != nil {
		return nil, err
	}
	all := DetectLakes(later, pixelAreaKm2, minPixels)

	result := &LakesResult{Lakes: make([]Lake, 0), Discarded: all.Discarded}
	visited := make([]bool, len(later.Pix))
	for _, lake := range all.Lakes {
		if overlaps(later, earlier, visited, lake.seed) {
			continue
		}
		lake.ID = len(result.Lakes) + 1
		result.Lakes = append(result.Lakes, lake)
		result.TotalPixels += lake.Pixels
		result.TotalKm2 += lake.AreaKm2
	}
	result.Count = len(result.Lakes)
	return result, nil
}

// floodFill visits the body containing (startX, startY) and measures it.
func floodFill(m *mask.Mask, visited []bool, startX, startY int) Lake {
	lake := Lake{
		Bounds: Bounds{X1: startX, Y1: startY, X2: startX + 1, Y2: startY + 1},
		seed:   Point{X: startX, Y: startY},
	}
	var sumX, sumY float64
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= m.Width || p.Y < 0 || p.Y >= m.Height {
			continue
		}
		i := p.Y*m.Width + p.X
		if visited[i] || m.Pix[i] == 0 {
			continue
		}
		visited[i] = true

		lake.Pixels++
		sumX += float64(p.X)
		sumY += float64(p.Y)
		lake.Bounds.X1 = min(lake.Bounds.X1, p.X)
		lake.Bounds.Y1 = min(lake.Bounds.Y1, p.Y)
		lake.Bounds.X2 = max(lake.Bounds.X2, p.X+1)
		lake.Bounds.Y2 = max(lake.Bounds.Y2, p.Y+1)
		if p.X == 0 || p.Y == 0 || p.X == m.Width-1 || p.Y == m.Height-1 {
			lake.TouchesEdge = true
		}

		shore := false
		for _, d := range neighbours {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
				continue
			}
			if m.Pix[ny*m.Width+nx] == 0 {
				shore = true
				continue
			}
			stack = append(stack, Point{X: nx, Y: ny})
		}
		if shore {
			lake.ShorelinePixels++
		}
	}

	lake.Centroid = [2]float64{sumX / float64(lake.Pixels), sumY / float64(lake.Pixels)}
	return lake
}

// overlaps walks the body of m containing seed and reports whether any of
// its pixels is water in other.
func overlaps(m, other *mask.Mask, visited []bool, seed Point) bool {
	found := false
	stack := []Point{seed}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.X < 0 || p.X >= m.Width || p.Y < 0 || p.Y >= m.Height {
			continue
		}
		i := p.Y*m.Width + p.X
		if visited[i] || m.Pix[i] == 0 {
			continue
		}
		visited[i] = true
		if other.Pix[i] == 1 {
			found = true
		}
		for _, d := range neighbours {
			stack = append(stack, Point{X: p.X + d.X, Y: p.Y + d.Y})
		}
	}
	return found
}

var neighbours = []Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}
