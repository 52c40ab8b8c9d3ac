package segment

import (
	"context"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

const (
	// DefaultPatchSize is the side of one inference patch in pixels.
	DefaultPatchSize = 256
	// DefaultBatchSize is the number of patches inferred together.
	DefaultBatchSize = 8
	// DefaultPatchesPerRow is the patch-grid width of stacks without a
	// recorded layout.
	DefaultPatchesPerRow = 32
)

// Tile cuts img into size x size patches in row-major order. Patches on the
// right and bottom edges are zero-padded. It returns the patch-grid rows and
// columns.
func Tile(img *Tensor, size int) ([]*Tensor, int, int, error) {
	if size <= 0 {
		return nil, 0, 0, fmt.Errorf("patch size must be positive, got %d", size)
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty image", ErrShape)
	}
	rows := (img.Height + size - 1) / size
	cols := (img.Width + size - 1) / size
	patches := make([]*Tensor, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := NewTensor(img.Channels, size, size)
			for ch := 0; ch < img.Channels; ch++ {
				for y := 0; y < size; y++ {
					sy := r*size + y
					if sy >= img.Height {
						break
					}
					x0 := c * size
					x1 := min(x0+size, img.Width)
					src := img.Data[(ch*img.Height+sy)*img.Width+x0 : (ch*img.Height+sy)*img.Width+x1]
					copy(p.Data[(ch*size+y)*size:], src)
				}
			}
			patches = append(patches, p)
		}
	}
	return patches, rows, cols, nil
}

// PredictPatches runs model over patches in batches of batchSize and returns
// the confidence grids in input order. Patches within a batch are predicted
// concurrently.
func PredictPatches(ctx context.Context, model Model, patches []*Tensor, batchSize int) ([]*raster.Grid, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([]*raster.Grid, len(patches))
	for start := 0; start < len(patches); start += batchSize {
		end := min(start+batchSize, len(patches))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pred, err := model.Predict(patches[i])
				if err != nil {
					return fmt.Errorf("failed to predict patch %d: %w", i, err)
				}
				out[i] = pred
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		log.Debugf("predicted patches %d-%d of %d", start+1, end, len(patches))
	}
	return out, nil
}

// Stitch joins square patch masks into one mask, perRow patches per row in
// row-major order. Only complete rows are used; a trailing partial row is
// dropped.
func Stitch(patches []*mask.Mask, perRow int) (*mask.Mask, error) {
	if perRow <= 0 {
		return nil, fmt.Errorf("patches per row must be positive, got %d", perRow)
	}
	rows := len(patches) / perRow
	if rows == 0 {
		return nil, fmt.Errorf("%w: %d patches do not fill one row of %d", ErrShape, len(patches), perRow)
	}
	if extra := len(patches) - rows*perRow; extra > 0 {
		log.Warnf("Dropping %d patch(es) that do not fill a row of %d", extra, perRow)
	}

	pw, ph := patches[0].Width, patches[0].Height
	out := mask.New(perRow*pw, rows*ph)
	for i := 0; i < rows*perRow; i++ {
		p := patches[i]
		if p.Width != pw || p.Height != ph {
			return nil, fmt.Errorf("%w: patch %d is %s, patch 0 is %s", ErrShape, i, p.Shape(), patches[0].Shape())
		}
		r, c := i/perRow, i%perRow
		for y := 0; y < ph; y++ {
			copy(out.Pix[(r*ph+y)*out.Width+c*pw:], p.Pix[y*pw:(y+1)*pw])
		}
	}
	return out, nil
}

// PatchStack is a saved set of patches awaiting inference, with the grid
// width used to reassemble them.
type PatchStack struct {
	Size    int         `msgpack:"size"`
	PerRow  int         `msgpack:"per_row"`
	Patches [][]float64 `msgpack:"patches"`
	// Channels of every patch.
	Channels int `msgpack:"channels"`
}

// SavePatches writes patches to path as a msgpack stack.
func SavePatches(path string, patches []*Tensor, perRow int) error {
	if len(patches) == 0 {
		return fmt.Errorf("no patches to save")
	}
	st := PatchStack{Size: patches[0].Width, PerRow: perRow, Channels: patches[0].Channels}
	for _, p := range patches {
		st.Patches = append(st.Patches, p.Data)
	}
	data, err := msgpack.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode patches: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write patches: %w", err)
	}
	return nil
}

// LoadPatches reads a stack written by SavePatches. The returned row width
// is 0 when the stack does not record one.
func LoadPatches(path string) ([]*Tensor, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read patches: %w", err)
	}
	var st PatchStack
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return nil, 0, fmt.Errorf("failed to decode patches %s: %w", path, err)
	}
	want := st.Channels * st.Size * st.Size
	out := make([]*Tensor, 0, len(st.Patches))
	for i, d := range st.Patches {
		if len(d) != want {
			return nil, 0, fmt.Errorf("%w: patch %d has %d samples, want %d", ErrShape, i, len(d), want)
		}
		out = append(out, &Tensor{Channels: st.Channels, Height: st.Size, Width: st.Size, Data: d})
	}
	return out, st.PerRow, nil
}
