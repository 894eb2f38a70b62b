package layers

import (
	"math"
	"strings"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Activation applies an element-wise nonlinearity.
type Activation struct {
	name  string
	f     func(float64) float64
	deriv func(x, y float64) float64 // derivative given input x and output y
}

var supportedActivations = map[string]Activation{
	"relu": {
		name: "relu",
		f:    func(x float64) float64 { return math.Max(x, 0) },
		deriv: func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
	"sigmoid": {
		name:  "sigmoid",
		f:     func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		deriv: func(_, y float64) float64 { return y * (1 - y) },
	},
	"tanh": {
		name:  "tanh",
		f:     math.Tanh,
		deriv: func(_, y float64) float64 { return 1 - y*y },
	},
	"linear": {
		name:  "linear",
		f:     func(x float64) float64 { return x },
		deriv: func(_, _ float64) float64 { return 1 },
	},
}

// NewActivation looks up an activation by its Keras name.
func NewActivation(name string) (*Activation, error) {
	a, ok := supportedActivations[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("unsupported activation: %s", name)
	}
	return &a, nil
}

func mustActivation(name string) *Activation {
	a, err := NewActivation(name)
	if err != nil {
		panic(err)
	}
	return a
}

func ReLU() *Activation    { return mustActivation("relu") }
func Sigmoid() *Activation { return mustActivation("sigmoid") }
func Tanh() *Activation    { return mustActivation("tanh") }

// Name returns the activation's lower-case name.
func (a *Activation) Name() string { return a.name }

func (a *Activation) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y := tensor.New(x.Shape...)
	for i, v := range x.Data {
		y.Data[i] = a.f(v)
	}
	return y, nil
}

func (a *Activation) Backward(x, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	if len(x.Data) != len(gradOut.Data) {
		return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s: input %v, gradient %v", a.Tag(), x.Shape, gradOut.Shape)
	}
	gradIn := tensor.New(x.Shape...)
	for i, v := range x.Data {
		gradIn.Data[i] = gradOut.Data[i] * a.deriv(v, a.f(v))
	}
	return gradIn, nil, nil
}

func (a *Activation) Params() []*tensor.Tensor { return nil }

func (a *Activation) Clone() nn.Module {
	cp := *a
	return &cp
}

func (a *Activation) OutputShape(in []int) ([]int, error) {
	return append([]int(nil), in...), nil
}

func (a *Activation) Tag() string {
	return "Activation_" + a.name
}
