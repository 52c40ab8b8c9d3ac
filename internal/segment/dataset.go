package segment

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// Dataset yields (image, mask) training pairs by index.
type Dataset interface {
	Len() int
	Sample(i int) (*Tensor, *raster.Grid, error)
}

// DirDataset pairs every file in ImageDir with the file of the same name in
// MaskDir. Images are read as RGB and masks as luminance, both scaled to
// [0,1]. Files are decoded on demand.
type DirDataset struct {
	ImageDir string
	MaskDir  string
	Names    []string
}

// NewDirDataset lists ImageDir in sorted order.
func NewDirDataset(imageDir, maskDir string) (*DirDataset, error) {
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list training images: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return &DirDataset{ImageDir: imageDir, MaskDir: maskDir, Names: names}, nil
}

// Len returns the number of pairs.
func (d *DirDataset) Len() int {
	return len(d.Names)
}

// Sample decodes pair i.
func (d *DirDataset) Sample(i int) (*Tensor, *raster.Grid, error) {
	name := d.Names[i]
	img, err := imaging.Open(filepath.Join(d.ImageDir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open training image %s: %w", name, err)
	}
	m, err := imaging.Open(filepath.Join(d.MaskDir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open training mask %s: %w", name, err)
	}
	return RGBTensor(img), LuminanceGrid(m), nil
}

// RGBTensor converts img to a 3-channel tensor scaled to [0,1]. Alpha is
// dropped.
func RGBTensor(img image.Image) *Tensor {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	t := NewTensor(3, h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + x*4
			for c := 0; c < 3; c++ {
				t.Set(c, x, y, float64(src.Pix[i+c])/255)
			}
		}
	}
	return t
}

// LuminanceGrid converts img to ITU-R 601 luma scaled to [0,1].
func LuminanceGrid(img image.Image) *raster.Grid {
	src := imaging.Grayscale(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	g := raster.NewGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, float64(src.Pix[y*src.Stride+x*4])/255)
		}
	}
	return g
}

// MemoryDataset is a Dataset over decoded pairs.
type MemoryDataset struct {
	Images []*Tensor
	Masks  []*raster.Grid
}

// Len returns the number of pairs.
func (d *MemoryDataset) Len() int {
	return len(d.Images)
}

// Sample returns pair i.
func (d *MemoryDataset) Sample(i int) (*Tensor, *raster.Grid, error) {
	return d.Images[i], d.Masks[i], nil
}
