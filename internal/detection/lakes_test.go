package detection

import (
	"testing"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
)

// createMask builds a mask from rows of '#' (water) and '.' (land).
func createMask(t *testing.T, rows ...string) *mask.Mask {
	t.Helper()
	m := mask.New(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != m.Width {
			t.Fatalf("row %d has length %d, want %d", y, len(row), m.Width)
		}
		for x, ch := range row {
			if ch == '#' {
				m.Set(x, y, 1)
			}
		}
	}
	return m
}

func TestDetectLakes(t *testing.T) {
	m := createMask(t,
		"##......",
		"##...###",
		".....###",
		"#....###",
		"........",
	)

	result := DetectLakes(m, 0.0001, 1)
	if result.Count != 3 {
		t.Fatalf("Count: got %d, want 3", result.Count)
	}

	big := result.Lakes[0]
	if big.ID != 1 || big.Pixels != 9 {
		t.Errorf("largest lake: got id=%d pixels=%d, want id=1 pixels=9", big.ID, big.Pixels)
	}
	if big.Bounds != (Bounds{X1: 5, Y1: 1, X2: 8, Y2: 4}) {
		t.Errorf("largest lake bounds: got %+v", big.Bounds)
	}
	if big.Centroid != [2]float64{6, 2} {
		t.Errorf("largest lake centroid: got %v", big.Centroid)
	}
	if big.ShorelinePixels != 7 {
		t.Errorf("largest lake shoreline: got %d, want 7", big.ShorelinePixels)
	}
	if !big.TouchesEdge {
		t.Error("largest lake reaches the right border")
	}

	if result.Lakes[1].Pixels != 4 || result.Lakes[2].Pixels != 1 {
		t.Errorf("smaller lakes: got %d and %d pixels", result.Lakes[1].Pixels, result.Lakes[2].Pixels)
	}
	if result.TotalPixels != 14 {
		t.Errorf("TotalPixels: got %d, want 14", result.TotalPixels)
	}
	if diff := result.TotalKm2 - 0.0014; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("TotalKm2: got %g, want 0.0014", result.TotalKm2)
	}
}

func TestDetectLakes_DiagonalsStaySeparate(t *testing.T) {
	m := createMask(t,
		"#.",
		".#",
	)
	result := DetectLakes(m, 1, 1)
	if result.Count != 2 {
		t.Errorf("diagonal pixels: got %d lakes, want 2", result.Count)
	}
}

func TestDetectLakes_MinPixels(t *testing.T) {
	m := createMask(t,
		"#..##",
		"...##",
		"#....",
	)

	tests := []struct {
		name          string
		minPixels     int
		wantCount     int
		wantDiscarded int
	}{
		{"keep all", 0, 3, 0},
		{"drop singles", 2, 1, 2},
		{"drop everything", 5, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectLakes(m, 1, tt.minPixels)
			if result.Count != tt.wantCount {
				t.Errorf("Count: got %d, want %d", result.Count, tt.wantCount)
			}
			if result.Discarded != tt.wantDiscarded {
				t.Errorf("Discarded: got %d, want %d", result.Discarded, tt.wantDiscarded)
			}
		})
	}
}

func TestDetectLakes_Empty(t *testing.T) {
	result := DetectLakes(mask.New(6, 4), 1, 1)
	if result.Count != 0 || len(result.Lakes) != 0 || result.TotalPixels != 0 {
		t.Errorf("empty mask: got %+v", result)
	}
}

func TestNewLakes(t *testing.T) {
	earlier := createMask(t,
		"##......",
		"##......",
		"........",
	)
	later := createMask(t,
		"###.....",
		"##....##",
		"......##",
	)

	result, err := NewLakes(earlier, later, 0.01, 1)
	if err != nil {
		t.Fatalf("NewLakes failed: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("Count: got %d, want 1 (the grown lake is not new)", result.Count)
	}
	lake := result.Lakes[0]
	if lake.ID != 1 || lake.Pixels != 4 || lake.Bounds.X1 != 6 {
		t.Errorf("new lake: got %+v", lake)
	}
	if diff := result.TotalKm2 - 0.04; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("TotalKm2: got %g, want 0.04", result.TotalKm2)
	}
}

func TestNewLakes_ShapeMismatch(t *testing.T) {
	if _, err := NewLakes(mask.New(3, 3), mask.New(3, 4), 1, 1); err == nil {
		t.Error("NewLakes should reject masks of different shapes")
	}
}

func TestBounds_Size(t *testing.T) {
	b := Bounds{X1: 2, Y1: 3, X2: 7, Y2: 4}
	if b.Width() != 5 || b.Height() != 1 {
		t.Errorf("size: got %dx%d, want 5x1", b.Width(), b.Height())
	}
}
