package nn

import (
	"fmt"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Target reduces a model output to the scalar that gets differentiated.
// Seed returns d(scalar)/d(output).
type Target interface {
	Seed(out *tensor.Tensor) (*tensor.Tensor, error)
	String() string
}

type sumTarget struct{}

func (sumTarget) Seed(out *tensor.Tensor) (*tensor.Tensor, error) {
	seed := tensor.New(out.Shape...)
	for i := range seed.Data {
		seed.Data[i] = 1
	}
	return seed, nil
}

func (sumTarget) String() string { return "sum" }

type meanTarget struct{}

func (meanTarget) Seed(out *tensor.Tensor) (*tensor.Tensor, error) {
	if len(out.Data) == 0 {
		return nil, errors.Wrap(tensor.ErrShapeMismatch, "mean of an empty output")
	}
	seed := tensor.New(out.Shape...)
	w := 1 / float64(len(out.Data))
	for i := range seed.Data {
		seed.Data[i] = w
	}
	return seed, nil
}

func (meanTarget) String() string { return "mean" }

// OutputIndex differentiates a single output unit of the flattened output.
type OutputIndex int

func (k OutputIndex) Seed(out *tensor.Tensor) (*tensor.Tensor, error) {
	if int(k) < 0 || int(k) >= len(out.Data) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "output index %d for %d outputs", int(k), len(out.Data))
	}
	seed := tensor.New(out.Shape...)
	seed.Data[k] = 1
	return seed, nil
}

func (k OutputIndex) String() string { return fmt.Sprintf("output[%d]", int(k)) }

var (
	// SumOutputs differentiates the sum of all outputs.
	SumOutputs Target = sumTarget{}
	// MeanOutputs differentiates the mean of all outputs.
	MeanOutputs Target = meanTarget{}
)

// InputGradient returns the gradient of target(model(x)) with respect to x,
// shaped like x. Model parameters are read, never written.
func InputGradient(model Module, x *tensor.Tensor, target Target) (*tensor.Tensor, error) {
	if target == nil {
		target = SumOutputs
	}
	if seq, ok := model.(*Sequential); ok {
		acts, err := seq.Trace(x)
		if err != nil {
			return nil, err
		}
		seed, err := target.Seed(acts[len(acts)-1])
		if err != nil {
			return nil, err
		}
		grad, _, err := seq.backwardFrom(acts, seed)
		return grad, err
	}
	out, err := model.Forward(x)
	if err != nil {
		return nil, err
	}
	seed, err := target.Seed(out)
	if err != nil {
		return nil, err
	}
	grad, _, err := model.Backward(x, seed)
	return grad, err
}
