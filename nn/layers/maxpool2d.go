package layers

import (
	"fmt"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// MaxPool2D keeps the largest value of each non-overlapping p×p window.
type MaxPool2D struct {
	poolSize int
}

func NewMaxPool2D(p int) *MaxPool2D { return &MaxPool2D{poolSize: p} }

func (m *MaxPool2D) OutputShape(in []int) ([]int, error) {
	return poolShape(m.Tag(), m.poolSize, in)
}

// argmax returns the flat input index of the winner of window (c, oh, ow).
// Ties go to the first element in row-major order.
func (m *MaxPool2D) argmax(x *tensor.Tensor, c, oh, ow int) int {
	H, W := x.Shape[1], x.Shape[2]
	p := m.poolSize
	best := (c*H+oh*p)*W + ow*p
	for ph := 0; ph < p; ph++ {
		for pw := 0; pw < p; pw++ {
			idx := (c*H+oh*p+ph)*W + ow*p + pw
			if x.Data[idx] > x.Data[best] {
				best = idx
			}
		}
	}
	return best
}

func (m *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	outShape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	out := tensor.New(outShape...)
	for c := 0; c < outShape[0]; c++ {
		for oh := 0; oh < outShape[1]; oh++ {
			for ow := 0; ow < outShape[2]; ow++ {
				out.Data[(c*outShape[1]+oh)*outShape[2]+ow] = x.Data[m.argmax(x, c, oh, ow)]
			}
		}
	}
	return out, nil
}

// Backward routes each output gradient to the input that won its window.
func (m *MaxPool2D) Backward(x, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	outShape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, nil, err
	}
	if tensor.Size(outShape) != len(gradOut.Data) {
		return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s got gradient %v", m.Tag(), gradOut.Shape)
	}
	gradIn := tensor.New(x.Shape...)
	for c := 0; c < outShape[0]; c++ {
		for oh := 0; oh < outShape[1]; oh++ {
			for ow := 0; ow < outShape[2]; ow++ {
				gradIn.Data[m.argmax(x, c, oh, ow)] += gradOut.Data[(c*outShape[1]+oh)*outShape[2]+ow]
			}
		}
	}
	return gradIn, nil, nil
}

func (m *MaxPool2D) Params() []*tensor.Tensor { return nil }
func (m *MaxPool2D) Clone() nn.Module         { return &MaxPool2D{poolSize: m.poolSize} }

func (m *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%d", m.poolSize)
}
