package segment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// blueWater builds samples where water pixels are bright blue and land is
// dark, so a single convolution layer can separate them.
func blueWater(n, size int) *MemoryDataset {
	ds := &MemoryDataset{}
	for s := 0; s < n; s++ {
		img := NewTensor(3, size, size)
		target := raster.NewGrid(size, size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if (x+y+s)%3 == 0 {
					img.Set(2, x, y, 0.9)
					target.Set(x, y, 1)
				} else {
					img.Set(0, x, y, 0.4)
					img.Set(1, x, y, 0.3)
				}
			}
		}
		ds.Images = append(ds.Images, img)
		ds.Masks = append(ds.Masks, target)
	}
	return ds
}

func TestConvNet_PredictShapeAndRange(t *testing.T) {
	net := NewConvNet(3, 4, 1)
	img := NewTensor(3, 5, 7)
	for i := range img.Data {
		img.Data[i] = float64(i%11) / 10
	}
	g, err := net.Predict(img)
	require.NoError(t, err)
	assert.Equal(t, 7, g.Width)
	assert.Equal(t, 5, g.Height)
	for _, v := range g.Data {
		assert.True(t, v > 0 && v < 1, "confidence %v outside (0,1)", v)
	}

	_, err = net.Predict(NewTensor(1, 5, 7))
	assert.ErrorIs(t, err, ErrShape)
}

func TestConvNet_GradientMatchesFiniteDifference(t *testing.T) {
	net := NewConvNet(2, 3, 5)
	// Shift the hidden biases up so no ReLU sits on its kink.
	for i := range net.b1() {
		net.b1()[i] = 0.5
	}
	img := NewTensor(2, 4, 5)
	target := raster.NewGrid(5, 4)
	for i := range img.Data {
		img.Data[i] = math.Sin(float64(i)) * 0.5
	}
	for i := range target.Data {
		target.Data[i] = float64(i % 2)
	}
	ds := &MemoryDataset{Images: []*Tensor{img}, Masks: []*raster.Grid{target}}

	grad := make([]float64, len(net.Params))
	_, err := trainBatch(net, ds, []int{0}, grad)
	require.NoError(t, err)

	lossAt := func() float64 {
		_, p := net.forward(img)
		return BCE(p, target.Data) / float64(len(p))
	}
	const h = 1e-6
	for i := range net.Params {
		orig := net.Params[i]
		net.Params[i] = orig + h
		up := lossAt()
		net.Params[i] = orig - h
		down := lossAt()
		net.Params[i] = orig
		assert.InDelta(t, (up-down)/(2*h), grad[i], 1e-5, "param %d", i)
	}
}

func TestTrain_LossDecreases(t *testing.T) {
	net := NewConvNet(3, 4, 2)
	ds := blueWater(6, 8)
	cfg := TrainConfig{Epochs: 30, BatchSize: 4, LearningRate: 0.05, Seed: 3}

	var out bytes.Buffer
	res, err := Train(context.Background(), net, ds, cfg, &out)
	require.NoError(t, err)
	require.Len(t, res.EpochLoss, 30)
	assert.Less(t, res.EpochLoss[29], res.EpochLoss[0])
	assert.Contains(t, out.String(), "Starting training...")
	assert.Contains(t, out.String(), "Epoch 30/30: Loss = ")
}

func TestTrain_Errors(t *testing.T) {
	net := NewConvNet(3, 2, 1)
	_, err := Train(context.Background(), net, &MemoryDataset{}, DefaultTrainConfig, &bytes.Buffer{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Train(ctx, net, blueWater(2, 4), DefaultTrainConfig, &bytes.Buffer{})
	assert.True(t, errors.Is(err, context.Canceled))

	bad := blueWater(1, 4)
	bad.Masks[0] = raster.NewGrid(3, 3)
	_, err = Train(context.Background(), net, bad, DefaultTrainConfig, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrShape)
}

func TestBCE(t *testing.T) {
	assert.InDelta(t, 0, BCE([]float64{1, 0}, []float64{1, 0}), 1e-12)
	assert.InDelta(t, 200, BCE([]float64{0, 1}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, -math.Log(0.5), BCE([]float64{0.5}, []float64{1}), 1e-12)
}

func TestAdam_FirstStepMovesByLR(t *testing.T) {
	a := NewAdam(2, 0.1)
	params := []float64{1, 1}
	a.Step(params, []float64{3, -0.5})
	assert.InDelta(t, 0.9, params[0], 1e-6)
	assert.InDelta(t, 1.1, params[1], 1e-6)
}

func TestWeights_SaveLoad(t *testing.T) {
	net := NewConvNet(3, 5, 9)
	path := filepath.Join(t.TempDir(), "models", "unet.msgpack")
	require.NoError(t, Save(net, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, net.In, loaded.In)
	assert.Equal(t, net.Hidden, loaded.Hidden)
	assert.Equal(t, net.Params, loaded.Params)
}

func TestWeights_LoadRejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte{0xc1, 0x00}, 0644))
	_, err := Load(junk)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTile_PadsEdges(t *testing.T) {
	img := NewTensor(1, 3, 5)
	for i := range img.Data {
		img.Data[i] = float64(i + 1)
	}
	patches, rows, cols, err := Tile(img, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	require.Len(t, patches, 6)

	assert.Equal(t, []float64{1, 2, 6, 7}, patches[0].Data)
	assert.Equal(t, []float64{5, 0, 10, 0}, patches[2].Data)
	assert.Equal(t, []float64{15, 0, 0, 0}, patches[5].Data)
}

type constModel struct{ v float64 }

func (m constModel) InputChannels() int { return 3 }

func (m constModel) Predict(img *Tensor) (*raster.Grid, error) {
	g := raster.NewGrid(img.Width, img.Height)
	for i := range g.Data {
		g.Data[i] = m.v + img.Data[0]
	}
	return g, nil
}

func TestPredictPatches_KeepsOrder(t *testing.T) {
	var patches []*Tensor
	for i := 0; i < 19; i++ {
		p := NewTensor(3, 2, 2)
		p.Data[0] = float64(i)
		patches = append(patches, p)
	}
	out, err := PredictPatches(context.Background(), constModel{v: 0.25}, patches, DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, out, 19)
	for i, g := range out {
		assert.Equal(t, float64(i)+0.25, g.Data[0])
	}
}

func TestPredictPatches_MatchesSequential(t *testing.T) {
	net := NewConvNet(3, 4, 3)
	var patches []*Tensor
	for i := 0; i < 11; i++ {
		p := NewTensor(3, 4, 4)
		for j := range p.Data {
			p.Data[j] = float64((i*7+j)%13) / 12
		}
		patches = append(patches, p)
	}

	out, err := PredictPatches(context.Background(), net, patches, 4)
	require.NoError(t, err)
	require.Len(t, out, len(patches))
	for i, p := range patches {
		want, err := net.Predict(p)
		require.NoError(t, err)
		assert.Equal(t, want.Data, out[i].Data, "patch %d", i)
	}
}

func TestPredictPatches_PropagatesError(t *testing.T) {
	net := NewConvNet(3, 2, 1)
	_, err := PredictPatches(context.Background(), net, []*Tensor{NewTensor(1, 2, 2)}, 8)
	assert.ErrorIs(t, err, ErrShape)
}

func TestStitch(t *testing.T) {
	var ms []*mask.Mask
	for i := 0; i < 5; i++ {
		m := mask.New(2, 2)
		m.Set(i%2, 0, 1)
		ms = append(ms, m)
	}
	out, err := Stitch(ms, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Width)
	assert.Equal(t, 4, out.Height)
	assert.Equal(t, []uint8{
		1, 0, 0, 1,
		0, 0, 0, 0,
		1, 0, 0, 1,
		0, 0, 0, 0,
	}, out.Pix)

	_, err = Stitch(ms[:1], 2)
	assert.ErrorIs(t, err, ErrShape)
}

func TestPatchStack_RoundTrip(t *testing.T) {
	img := NewTensor(3, 4, 4)
	for i := range img.Data {
		img.Data[i] = float64(i) / 48
	}
	patches, _, cols, err := Tile(img, 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "patches.msgpack")
	require.NoError(t, SavePatches(path, patches, cols))
	loaded, perRow, err := LoadPatches(path)
	require.NoError(t, err)
	assert.Equal(t, 2, perRow)
	require.Len(t, loaded, 4)
	assert.Equal(t, patches[3].Data, loaded[3].Data)
}

func TestDirDataset(t *testing.T) {
	dir := t.TempDir()
	imgDir := filepath.Join(dir, "images")
	maskDir := filepath.Join(dir, "masks")
	require.NoError(t, os.MkdirAll(imgDir, 0755))
	require.NoError(t, os.MkdirAll(maskDir, 0755))

	rgb := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	rgb.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	rgb.Set(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 255})

	for _, name := range []string{"b.png", "a.png"} {
		writePNG(t, filepath.Join(imgDir, name), rgb)
		writePNG(t, filepath.Join(maskDir, name), gray)
	}

	ds, err := NewDirDataset(imgDir, maskDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, ds.Names)

	img, target, err := ds.Sample(0)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels)
	assert.InDelta(t, 1.0, img.At(0, 0, 0), 1e-9)
	assert.InDelta(t, 0.2, img.At(2, 0, 0), 1e-9)
	assert.InDelta(t, 1.0, img.At(1, 1, 0), 1e-9)
	assert.InDelta(t, 1.0, target.At(0, 0), 1e-9)
	assert.InDelta(t, 0.0, target.At(1, 0), 1e-9)
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestFromRaster(t *testing.T) {
	r := &raster.Raster{Bands: []*raster.Grid{raster.NewGrid(2, 1), raster.NewGrid(2, 1)}}
	r.Bands[1].Data[1] = 255
	tt, err := FromRaster(r, 255)
	require.NoError(t, err)
	assert.Equal(t, 2, tt.Channels)
	assert.Equal(t, 1.0, tt.At(1, 1, 0))

	_, err = FromRaster(&raster.Raster{}, 255)
	assert.ErrorIs(t, err, ErrShape)
}
