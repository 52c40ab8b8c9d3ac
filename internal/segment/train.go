package segment

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// TrainConfig controls the training loop.
type TrainConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
}

// DefaultTrainConfig mirrors the settings the lake models were trained with.
var DefaultTrainConfig = TrainConfig{
	Epochs:       20,
	BatchSize:    8,
	LearningRate: 1e-4,
	Seed:         1,
}

// TrainResult records the summed batch loss of every epoch.
type TrainResult struct {
	EpochLoss []float64 `json:"epoch_loss"`
	Samples   int       `json:"samples"`
}

// Train fits model to ds with pixelwise binary cross-entropy and Adam. Each
// epoch visits the samples in a fresh random order in mini-batches of
// cfg.BatchSize. Progress goes to out; the caller saves the weights.
func Train(ctx context.Context, model *ConvNet, ds Dataset, cfg TrainConfig, out io.Writer) (*TrainResult, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("training set is empty")
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 || cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid training config: epochs=%d batch=%d lr=%g", cfg.Epochs, cfg.BatchSize, cfg.LearningRate)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	opt := NewAdam(len(model.Params), cfg.LearningRate)
	grad := make([]float64, len(model.Params))
	res := &TrainResult{Samples: ds.Len()}

	fmt.Fprintln(out, "Starting training...")
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		order := rng.Perm(ds.Len())
		epochLoss := 0.0
		for start := 0; start < len(order); start += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			end := min(start+cfg.BatchSize, len(order))
			loss, err := trainBatch(model, ds, order[start:end], grad)
			if err != nil {
				return res, err
			}
			opt.Step(model.Params, grad)
			epochLoss += loss
		}
		res.EpochLoss = append(res.EpochLoss, epochLoss)
		fmt.Fprintf(out, "Epoch %d/%d: Loss = %.4f\n", epoch, cfg.Epochs, epochLoss)
		log.Debugf("epoch %d finished, loss %.6f", epoch, epochLoss)
	}
	return res, nil
}

// trainBatch computes the mean BCE over every pixel of the batch and leaves
// its gradient in grad.
func trainBatch(model *ConvNet, ds Dataset, idx []int, grad []float64) (float64, error) {
	for i := range grad {
		grad[i] = 0
	}

	type fwd struct {
		img    *Tensor
		target *raster.Grid
		hidden *Tensor
		prob   []float64
	}
	batch := make([]fwd, 0, len(idx))
	pixels := 0
	for _, i := range idx {
		img, target, err := ds.Sample(i)
		if err != nil {
			return 0, err
		}
		if img.Channels != model.In {
			return 0, fmt.Errorf("%w: sample %d has %d channels, model expects %d", ErrShape, i, img.Channels, model.In)
		}
		if target.Width != img.Width || target.Height != img.Height {
			return 0, fmt.Errorf("%w: sample %d image (%d, %d) vs mask %s", ErrShape, i, img.Height, img.Width, target.Shape())
		}
		hidden, prob := model.forward(img)
		batch = append(batch, fwd{img: img, target: target, hidden: hidden, prob: prob})
		pixels += len(prob)
	}

	loss := 0.0
	scale := 1 / float64(pixels)
	for _, b := range batch {
		loss += BCE(b.prob, b.target.Data)
		d := make([]float64, len(b.prob))
		floats.SubTo(d, b.prob, b.target.Data)
		floats.Scale(scale, d)
		model.backward(b.img, b.hidden, d, grad)
	}
	return loss * scale, nil
}

// BCE returns the summed binary cross-entropy of probabilities p against
// targets y. Log terms are clamped at -100.
func BCE(p, y []float64) float64 {
	sum := 0.0
	for i := range p {
		sum -= y[i]*clampedLog(p[i]) + (1-y[i])*clampedLog(1-p[i])
	}
	return sum
}

func clampedLog(v float64) float64 {
	return math.Max(math.Log(v), -100)
}

// Adam is the Adam optimizer over a flat parameter slice.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	m, v []float64
	t    int
}

// NewAdam returns an optimizer for n parameters with the usual betas.
func NewAdam(n int, lr float64) *Adam {
	return &Adam{
		LR:      lr,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
		m:       make([]float64, n),
		v:       make([]float64, n),
	}
}

// Step applies one update to params from grad.
func (a *Adam) Step(params, grad []float64) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, g := range grad {
		a.m[i] = a.Beta1*a.m[i] + (1-a.Beta1)*g
		a.v[i] = a.Beta2*a.v[i] + (1-a.Beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}
