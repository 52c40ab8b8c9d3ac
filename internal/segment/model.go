// Package segment holds the binary water-segmentation model and everything
// around it: training on image/mask pairs, weight files, and tiled batch
// inference over images larger than one patch.
//
// The rest of the module treats the model as opaque. It sees a Model that
// turns a 3-channel image into a per-pixel water confidence in [0,1].
package segment

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/lake-growth-mcp/internal/raster"
)

// ErrShape is returned when a tensor, mask, or weight file does not match the
// dimensions the model expects.
var ErrShape = errors.New("shape mismatch")

// Model produces a water confidence per pixel.
type Model interface {
	Predict(img *Tensor) (*raster.Grid, error)
	InputChannels() int
}

// ConvNet is a two-layer fully convolutional network: a 3x3 convolution with
// ReLU into Hidden feature maps, then a 1x1 convolution to one map and a
// sigmoid. Inputs are zero-padded so the output keeps the input's size.
type ConvNet struct {
	In     int
	Hidden int
	// Params is every weight in one slice:
	//   w1 [Hidden][In][3][3], b1 [Hidden], w2 [Hidden], b2 [1]
	Params []float64
}

// DefaultHidden is the number of feature maps in the hidden layer.
const DefaultHidden = 8

// NewConvNet returns a network with He-initialized weights drawn from seed.
func NewConvNet(in, hidden int, seed int64) *ConvNet {
	n := &ConvNet{In: in, Hidden: hidden, Params: make([]float64, paramCount(in, hidden))}
	rng := rand.New(rand.NewSource(seed))
	std1 := math.Sqrt(2 / float64(in*9))
	for i := range n.w1() {
		n.w1()[i] = rng.NormFloat64() * std1
	}
	std2 := math.Sqrt(1 / float64(hidden))
	for i := range n.w2() {
		n.w2()[i] = rng.NormFloat64() * std2
	}
	return n
}

func paramCount(in, hidden int) int {
	return hidden*in*9 + hidden + hidden + 1
}

func (n *ConvNet) w1() []float64 { return n.Params[:n.Hidden*n.In*9] }

func (n *ConvNet) b1() []float64 {
	o := n.Hidden * n.In * 9
	return n.Params[o : o+n.Hidden]
}

func (n *ConvNet) w2() []float64 {
	o := n.Hidden*n.In*9 + n.Hidden
	return n.Params[o : o+n.Hidden]
}

func (n *ConvNet) b2() []float64 {
	o := n.Hidden*n.In*9 + 2*n.Hidden
	return n.Params[o : o+1]
}

// kernel returns the 3x3 weights connecting input channel c to hidden map h.
func (n *ConvNet) kernel(h, c int) []float64 {
	o := (h*n.In + c) * 9
	return n.w1()[o : o+9]
}

// InputChannels reports the channel count Predict expects.
func (n *ConvNet) InputChannels() int {
	return n.In
}

// Predict returns the sigmoid confidence for every pixel of img.
func (n *ConvNet) Predict(img *Tensor) (*raster.Grid, error) {
	if img.Channels != n.In {
		return nil, fmt.Errorf("%w: model expects %d channels, image has %d", ErrShape, n.In, img.Channels)
	}
	_, out := n.forward(img)
	g := &raster.Grid{Width: img.Width, Height: img.Height, Data: out}
	return g, nil
}

// forward returns the hidden activations (after ReLU) and the output
// probabilities.
func (n *ConvNet) forward(img *Tensor) (*Tensor, []float64) {
	hidden := NewTensor(n.Hidden, img.Height, img.Width)
	b1 := n.b1()
	for h := 0; h < n.Hidden; h++ {
		z := hidden.Plane(h)
		for i := range z {
			z[i] = b1[h]
		}
		for c := 0; c < n.In; c++ {
			k := n.kernel(h, c)
			src := img.Plane(c)
			for ky := 0; ky < 3; ky++ {
				for kx := 0; kx < 3; kx++ {
					addShifted(z, src, img.Width, img.Height, kx-1, ky-1, k[ky*3+kx])
				}
			}
		}
		for i, v := range z {
			if v < 0 {
				z[i] = 0
			}
		}
	}

	out := make([]float64, img.Height*img.Width)
	for i := range out {
		out[i] = n.b2()[0]
	}
	w2 := n.w2()
	for h := 0; h < n.Hidden; h++ {
		floats.AddScaled(out, w2[h], hidden.Plane(h))
	}
	for i, v := range out {
		out[i] = sigmoid(v)
	}
	return hidden, out
}

// backward accumulates into grad the gradient of the loss for one sample,
// given dOut, the loss gradient with respect to the pre-sigmoid output.
func (n *ConvNet) backward(img, hidden *Tensor, dOut []float64, grad []float64) {
	o1 := n.Hidden * n.In * 9
	gw1 := grad[:o1]
	gb1 := grad[o1 : o1+n.Hidden]
	gw2 := grad[o1+n.Hidden : o1+2*n.Hidden]
	gb2 := grad[o1+2*n.Hidden:]

	gb2[0] += floats.Sum(dOut)
	w2 := n.w2()
	dz := make([]float64, len(dOut))
	for h := 0; h < n.Hidden; h++ {
		a := hidden.Plane(h)
		gw2[h] += floats.Dot(dOut, a)

		for i, v := range a {
			if v > 0 {
				dz[i] = dOut[i] * w2[h]
			} else {
				dz[i] = 0
			}
		}
		gb1[h] += floats.Sum(dz)
		for c := 0; c < n.In; c++ {
			src := img.Plane(c)
			o := (h*n.In + c) * 9
			for ky := 0; ky < 3; ky++ {
				for kx := 0; kx < 3; kx++ {
					gw1[o+ky*3+kx] += dotShifted(dz, src, img.Width, img.Height, kx-1, ky-1)
				}
			}
		}
	}
}

// addShifted adds scale*src(x+dx, y+dy) to dst(x, y) over the pixels where the
// shifted position lies inside the image.
func addShifted(dst, src []float64, w, h, dx, dy int, scale float64) {
	x0, x1 := shiftedSpan(w, dx)
	if x0 >= x1 {
		return
	}
	for y := 0; y < h; y++ {
		sy := y + dy
		if sy < 0 || sy >= h {
			continue
		}
		floats.AddScaled(dst[y*w+x0:y*w+x1], scale, src[sy*w+x0+dx:sy*w+x1+dx])
	}
}

// dotShifted returns sum over (x, y) of a(x, y) * src(x+dx, y+dy).
func dotShifted(a, src []float64, w, h, dx, dy int) float64 {
	x0, x1 := shiftedSpan(w, dx)
	if x0 >= x1 {
		return 0
	}
	sum := 0.0
	for y := 0; y < h; y++ {
		sy := y + dy
		if sy < 0 || sy >= h {
			continue
		}
		sum += floats.Dot(a[y*w+x0:y*w+x1], src[sy*w+x0+dx:sy*w+x1+dx])
	}
	return sum
}

// shiftedSpan returns the columns [x0, x1) for which x+dx is in [0, w).
func shiftedSpan(w, dx int) (int, int) {
	x0, x1 := 0, w
	if dx < 0 {
		x0 = -dx
	}
	if dx > 0 {
		x1 = w - dx
	}
	return x0, x1
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
