package layers

import (
	"fmt"
	"math/rand"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Padding modes for Conv2D.
const (
	PaddingValid = "valid"
	PaddingSame  = "same"
)

// Conv2D is a stride-1 2D convolution over a single [C,H,W] example.
type Conv2D struct {
	InChan, OutChan int
	KH, KW          int
	Padding         string
	// Init names the kernel initialiser used by InitWeights.
	Init string

	W *tensor.Tensor // [OutChan, InChan, KH, KW]
	B *tensor.Tensor // [OutChan]
}

// NewConv2D creates a zero-initialised convolution. padding is "valid" or "same".
func NewConv2D(inChan, outChan, kh, kw int, padding string) (*Conv2D, error) {
	if padding == "" {
		padding = PaddingValid
	}
	if padding != PaddingValid && padding != PaddingSame {
		return nil, errors.Errorf("unknown padding %q", padding)
	}
	if inChan <= 0 || outChan <= 0 || kh <= 0 || kw <= 0 {
		return nil, errors.Errorf("invalid conv geometry %dx%d, %d→%d channels", kh, kw, inChan, outChan)
	}
	return &Conv2D{
		InChan:  inChan,
		OutChan: outChan,
		KH:      kh,
		KW:      kw,
		Padding: padding,
		W:       tensor.New(outChan, inChan, kh, kw),
		B:       tensor.New(outChan),
	}, nil
}

// InitWeights draws W over the receptive field from the Init distribution,
// Glorot-uniform by default.
func (c *Conv2D) InitWeights(rng *rand.Rand) {
	field := c.KH * c.KW
	initKernel(c.Init, c.W, c.InChan*field, c.OutChan*field, rng)
	for i := range c.B.Data {
		c.B.Data[i] = 0
	}
}

// pads returns the top and left zero padding.
func (c *Conv2D) pads() (int, int) {
	if c.Padding == PaddingSame {
		return (c.KH - 1) / 2, (c.KW - 1) / 2
	}
	return 0, 0
}

// GetOutputShape returns the spatial output size for an inH×inW input.
func (c *Conv2D) GetOutputShape(inH, inW int) (outH, outW int) {
	if c.Padding == PaddingSame {
		return inH, inW
	}
	return inH - c.KH + 1, inW - c.KW + 1
}

func (c *Conv2D) OutputShape(in []int) ([]int, error) {
	if len(in) != 3 || in[0] != c.InChan {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s expects [%d,H,W], got %v", c.Tag(), c.InChan, in)
	}
	outH, outW := c.GetOutputShape(in[1], in[2])
	if outH <= 0 || outW <= 0 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s kernel larger than input %v", c.Tag(), in)
	}
	return []int{c.OutChan, outH, outW}, nil
}

func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := c.OutputShape(input.Shape)
	if err != nil {
		return nil, err
	}
	height, width := input.Shape[1], input.Shape[2]
	outHeight, outWidth := outShape[1], outShape[2]
	padT, padL := c.pads()
	output := tensor.New(outShape...)

	for oc := 0; oc < c.OutChan; oc++ {
		for y := 0; y < outHeight; y++ {
			for x := 0; x < outWidth; x++ {
				sum := c.B.Data[oc]
				for ic := 0; ic < c.InChan; ic++ {
					for dy := 0; dy < c.KH; dy++ {
						iy := y + dy - padT
						if iy < 0 || iy >= height {
							continue
						}
						for dx := 0; dx < c.KW; dx++ {
							ix := x + dx - padL
							if ix < 0 || ix >= width {
								continue
							}
							wIdx := ((oc*c.InChan+ic)*c.KH+dy)*c.KW + dx
							inIdx := (ic*height+iy)*width + ix
							sum += input.Data[inIdx] * c.W.Data[wIdx]
						}
					}
				}
				output.Data[(oc*outHeight+y)*outWidth+x] = sum
			}
		}
	}
	return output, nil
}

// Backward scatters gradOut through the kernel: each output position adds
// W·g to the inputs it read and input·g to the weights it used.
func (c *Conv2D) Backward(input, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	outShape, err := c.OutputShape(input.Shape)
	if err != nil {
		return nil, nil, err
	}
	if tensor.Size(outShape) != len(gradOut.Data) {
		return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s got gradient %v, want %v", c.Tag(), gradOut.Shape, outShape)
	}
	height, width := input.Shape[1], input.Shape[2]
	outHeight, outWidth := outShape[1], outShape[2]
	padT, padL := c.pads()

	gradIn := tensor.New(input.Shape...)
	gradW := tensor.New(c.W.Shape...)
	gradB := tensor.New(c.OutChan)

	for oc := 0; oc < c.OutChan; oc++ {
		for y := 0; y < outHeight; y++ {
			for x := 0; x < outWidth; x++ {
				g := gradOut.Data[(oc*outHeight+y)*outWidth+x]
				if g == 0 {
					continue
				}
				gradB.Data[oc] += g
				for ic := 0; ic < c.InChan; ic++ {
					for dy := 0; dy < c.KH; dy++ {
						iy := y + dy - padT
						if iy < 0 || iy >= height {
							continue
						}
						for dx := 0; dx < c.KW; dx++ {
							ix := x + dx - padL
							if ix < 0 || ix >= width {
								continue
							}
							wIdx := ((oc*c.InChan+ic)*c.KH+dy)*c.KW + dx
							inIdx := (ic*height+iy)*width + ix
							gradW.Data[wIdx] += input.Data[inIdx] * g
							gradIn.Data[inIdx] += c.W.Data[wIdx] * g
						}
					}
				}
			}
		}
	}
	return gradIn, []*tensor.Tensor{gradW, gradB}, nil
}

func (c *Conv2D) Params() []*tensor.Tensor { return []*tensor.Tensor{c.W, c.B} }

func (c *Conv2D) Clone() nn.Module {
	cp := *c
	cp.W = c.W.Clone()
	cp.B = c.B.Clone()
	return &cp
}

func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%d_%d_%s", c.InChan, c.OutChan, c.KH, c.KW, c.Padding)
}
