package layers

import (
	"fmt"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Dropout is the identity at inference. During nn.Fit it zeroes each unit
// with probability Rate and scales survivors by 1/(1-Rate).
type Dropout struct {
	Rate float64
}

func NewDropout(rate float64) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, errors.Errorf("dropout rate %v outside [0,1)", rate)
	}
	return &Dropout{Rate: rate}, nil
}

// Mask implements nn.Stochastic.
func (d *Dropout) Mask(shape []int, rng nn.Rand) *tensor.Tensor {
	mask := tensor.New(shape...)
	keep := 1 / (1 - d.Rate)
	for i := range mask.Data {
		if rng.Float64() >= d.Rate {
			mask.Data[i] = keep
		}
	}
	return mask
}

func (d *Dropout) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Clone(), nil
}

func (d *Dropout) Backward(x, g *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	return g.Clone(), nil, nil
}

func (d *Dropout) Params() []*tensor.Tensor { return nil }
func (d *Dropout) Clone() nn.Module         { return &Dropout{Rate: d.Rate} }

func (d *Dropout) OutputShape(in []int) ([]int, error) {
	return append([]int(nil), in...), nil
}

func (d *Dropout) Tag() string {
	return fmt.Sprintf("Dropout_%g", d.Rate)
}
