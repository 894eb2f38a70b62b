package nn

import (
	"math"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Optimizer applies one update step to params given their gradients.
type Optimizer interface {
	Step(params, grads []*tensor.Tensor) error
}

func checkGrads(params, grads []*tensor.Tensor) error {
	if len(params) != len(grads) {
		return errors.Errorf("%d gradients for %d parameters", len(grads), len(params))
	}
	for i := range params {
		if len(params[i].Data) != len(grads[i].Data) {
			return errors.Wrapf(tensor.ErrShapeMismatch, "parameter %d: %v vs gradient %v", i, params[i].Shape, grads[i].Shape)
		}
	}
	return nil
}

// SGD is plain stochastic gradient descent.
type SGD struct {
	LearningRate float64
}

func (o *SGD) Step(params, grads []*tensor.Tensor) error {
	if err := checkGrads(params, grads); err != nil {
		return err
	}
	for i, p := range params {
		for j := range p.Data {
			p.Data[j] -= o.LearningRate * grads[i].Data[j]
		}
	}
	return nil
}

// Adam keeps per-parameter first and second moment estimates. The state is
// bound to the parameter list passed to the first Step call.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t    int
	m, v [][]float64
}

// NewAdam returns an Adam optimizer with the Keras default moments.
func NewAdam(lr float64) *Adam {
	return &Adam{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

func (o *Adam) Step(params, grads []*tensor.Tensor) error {
	if err := checkGrads(params, grads); err != nil {
		return err
	}
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.Data))
			o.v[i] = make([]float64, len(p.Data))
		}
	}
	if len(o.m) != len(params) {
		return errors.Errorf("adam state holds %d parameters, got %d", len(o.m), len(params))
	}
	o.t++
	b1t := 1 - math.Pow(o.Beta1, float64(o.t))
	b2t := 1 - math.Pow(o.Beta2, float64(o.t))
	lr := o.LearningRate * math.Sqrt(b2t) / b1t
	for i, p := range params {
		m, v, g := o.m[i], o.v[i], grads[i].Data
		for j := range p.Data {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g[j]
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g[j]*g[j]
			p.Data[j] -= lr * m[j] / (math.Sqrt(v[j]) + o.Epsilon)
		}
	}
	return nil
}
