package layers

import (
	"tcav_lib/nn"
	"tcav_lib/tensor"
)

// Flatten reshapes its input to 1D.
type Flatten struct{}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Clone().Flat(), nil
}

func (f *Flatten) Backward(x, g *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	gradIn, err := g.Clone().Reshape(x.Shape...)
	return gradIn, nil, err
}

func (f *Flatten) Params() []*tensor.Tensor { return nil }
func (f *Flatten) Clone() nn.Module         { return &Flatten{} }

func (f *Flatten) OutputShape(in []int) ([]int, error) {
	return []int{tensor.Size(in)}, nil
}

func (f *Flatten) Tag() string {
	return "Flatten"
}
