package pipeline

import (
	"context"
	"fmt"

	"github.com/ironsheep/lake-growth-mcp/internal/imaging"
	"github.com/ironsheep/lake-growth-mcp/internal/mask"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
	"github.com/ironsheep/lake-growth-mcp/internal/segment"
)

// imageScale normalizes 8-bit imagery for the model.
const imageScale = 255

func (p *Pipeline) loadModel(in int) (*segment.ConvNet, error) {
	if p.cfg.Inputs.Model == "" {
		return nil, fmt.Errorf("no model path configured")
	}
	net, err := segment.Load(p.cfg.Inputs.Model)
	if err != nil {
		return nil, err
	}
	if in != net.InputChannels() {
		return nil, fmt.Errorf("%w: model expects %d channel(s), input has %d", segment.ErrShape, net.InputChannels(), in)
	}
	return net, nil
}

func (p *Pipeline) imageTensor() (*segment.Tensor, *raster.Raster, error) {
	r, err := p.load(p.cfg.Inputs.Image, "input image")
	if err != nil {
		return nil, nil, err
	}
	t, err := segment.FromRaster(r, imageScale)
	if err != nil {
		return nil, nil, err
	}
	return t, r, nil
}

// Predict runs the model over the whole input image and writes the
// thresholded mask with the image's georeferencing.
func (p *Pipeline) Predict(ctx context.Context) (*Report, error) {
	img, r, err := p.imageTensor()
	if err != nil {
		return nil, err
	}
	net, err := p.loadModel(img.Channels)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prob, err := net.Predict(img)
	if err != nil {
		return nil, err
	}
	m := mask.Binarize(prob, p.cfg.MaskThreshold)

	path := p.cfg.Output(p.cfg.Outputs.PredictedMask)
	if err := writeMask(path, m, r.Georef); err != nil {
		return nil, fmt.Errorf("failed to save predicted mask: %w", err)
	}
	p.printf("Saved predicted mask to: %s\n", path)
	return &Report{
		Workflow:     "predict",
		PixelAreaKm2: r.PixelAreaKm2(),
		Outputs:      []string{path},
		Mask:         m,
	}, nil
}

// PredictPatches runs batched inference over patches and stitches the masks
// back together. With an input image configured the image is tiled and the
// result cropped to it; otherwise the saved patch stack is used.
func (p *Pipeline) PredictPatches(ctx context.Context) (*Report, error) {
	var (
		patches []*segment.Tensor
		perRow  int
		source  *raster.Raster
	)
	if p.cfg.Inputs.Image != "" {
		img, r, err := p.imageTensor()
		if err != nil {
			return nil, err
		}
		patches, _, perRow, err = segment.Tile(img, p.cfg.Patches.Size)
		if err != nil {
			return nil, err
		}
		source = r
	} else {
		if p.cfg.Inputs.Patches == "" {
			return nil, fmt.Errorf("no input image or patch stack configured")
		}
		var err error
		patches, perRow, err = segment.LoadPatches(p.cfg.Inputs.Patches)
		if err != nil {
			return nil, err
		}
		if perRow == 0 {
			perRow = p.cfg.Patches.PerRow
		}
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("%w: no patches to predict", segment.ErrShape)
	}
	p.printf("Loaded %d patches\n", len(patches))

	net, err := p.loadModel(patches[0].Channels)
	if err != nil {
		return nil, err
	}
	preds, err := segment.PredictPatches(ctx, net, patches, p.cfg.Patches.BatchSize)
	if err != nil {
		return nil, err
	}
	p.printf("Predictions done. Shape: (%d, 1, %d, %d)\n", len(preds), preds[0].Height, preds[0].Width)

	masks := make([]*mask.Mask, len(preds))
	for i, g := range preds {
		masks[i] = mask.Binarize(g, p.cfg.MaskThreshold)
	}
	m, err := segment.Stitch(masks, perRow)
	if err != nil {
		return nil, err
	}

	var ref raster.Georef
	if source != nil {
		// Drop the zero padding of the edge patches.
		if m, err = imaging.CropMask(m, 0, 0, source.Width(), source.Height()); err != nil {
			return nil, err
		}
		ref = source.Georef
	}

	path := p.cfg.Output(p.cfg.Outputs.PredictedMask)
	if err := writeMask(path, m, ref); err != nil {
		return nil, fmt.Errorf("failed to save predicted mask: %w", err)
	}
	p.printf("Saved full predicted mask at %s\n", path)
	return &Report{
		Workflow: "predict_patches",
		Patches:  len(patches),
		Outputs:  []string{path},
		Mask:     m,
	}, nil
}

// Tile cuts the input image into patches and saves them as a patch stack for
// PredictPatches.
func (p *Pipeline) Tile(ctx context.Context) (*Report, error) {
	img, _, err := p.imageTensor()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patches, rows, cols, err := segment.Tile(img, p.cfg.Patches.Size)
	if err != nil {
		return nil, err
	}
	path := p.cfg.Inputs.Patches
	if path == "" {
		return nil, fmt.Errorf("no patch stack path configured")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if err := segment.SavePatches(path, patches, cols); err != nil {
		return nil, err
	}
	p.printf("Saved %d patches (%d x %d of %dpx) to %s\n", len(patches), rows, cols, p.cfg.Patches.Size, path)
	return &Report{Workflow: "tile", Patches: len(patches), Outputs: []string{path}}, nil
}

// Train fits a new model on the configured image and mask directories and
// saves its weights.
func (p *Pipeline) Train(ctx context.Context) (*Report, error) {
	tc := p.cfg.Training
	ds, err := segment.NewDirDataset(tc.ImageDir, tc.MaskDir)
	if err != nil {
		return nil, err
	}
	p.printf("Training on %d samples from %s\n", ds.Len(), tc.ImageDir)

	net := segment.NewConvNet(3, tc.Hidden, tc.Seed)
	res, err := segment.Train(ctx, net, ds, tc.TrainConfig, p.out)
	if err != nil {
		return nil, err
	}

	path := p.cfg.Output(p.cfg.Outputs.Model)
	if err := segment.Save(net, path); err != nil {
		return nil, err
	}
	p.printf("Model saved to %s\n", path)
	return &Report{Workflow: "train", Training: res, Outputs: []string{path}}, nil
}
