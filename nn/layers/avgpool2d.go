package layers

import (
	"fmt"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// AvgPool2D averages non-overlapping p×p windows of a [C,H,W] input.
// Trailing rows and columns that do not fill a window are dropped.
type AvgPool2D struct {
	poolSize int
}

func NewAvgPool2D(p int) *AvgPool2D { return &AvgPool2D{poolSize: p} }

func poolShape(tag string, p int, in []int) ([]int, error) {
	if len(in) != 3 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s expects [C,H,W], got %v", tag, in)
	}
	if p <= 0 || in[1] < p || in[2] < p {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s cannot pool %v", tag, in)
	}
	return []int{in[0], in[1] / p, in[2] / p}, nil
}

func (a *AvgPool2D) OutputShape(in []int) ([]int, error) {
	return poolShape(a.Tag(), a.poolSize, in)
}

func (a *AvgPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := a.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	C, H, W := x.Shape[0], x.Shape[1], x.Shape[2]
	outH, outW := outShape[1], outShape[2]
	p := a.poolSize
	inv := 1.0 / float64(p*p)
	out := tensor.New(outShape...)
	for c := 0; c < C; c++ {
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				sum := 0.0
				for ph := 0; ph < p; ph++ {
					for pw := 0; pw < p; pw++ {
						sum += x.Data[(c*H+oh*p+ph)*W+ow*p+pw]
					}
				}
				out.Data[(c*outH+oh)*outW+ow] = sum * inv
			}
		}
	}
	return out, nil
}

// Backward spreads each output gradient evenly over its window.
func (a *AvgPool2D) Backward(x, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	outShape, err := a.OutputShape(x.Shape)
	if err != nil {
		return nil, nil, err
	}
	if tensor.Size(outShape) != len(gradOut.Data) {
		return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s got gradient %v", a.Tag(), gradOut.Shape)
	}
	C, H, W := x.Shape[0], x.Shape[1], x.Shape[2]
	outH, outW := outShape[1], outShape[2]
	p := a.poolSize
	inv := 1.0 / float64(p*p)
	gradIn := tensor.New(x.Shape...)
	for c := 0; c < C; c++ {
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				g := gradOut.Data[(c*outH+oh)*outW+ow] * inv
				for ph := 0; ph < p; ph++ {
					for pw := 0; pw < p; pw++ {
						gradIn.Data[(c*H+oh*p+ph)*W+ow*p+pw] += g
					}
				}
			}
		}
	}
	return gradIn, nil, nil
}

func (a *AvgPool2D) Params() []*tensor.Tensor { return nil }
func (a *AvgPool2D) Clone() nn.Module         { return &AvgPool2D{poolSize: a.poolSize} }

func (a *AvgPool2D) Tag() string {
	return fmt.Sprintf("AvgPool2D_%d", a.poolSize)
}
