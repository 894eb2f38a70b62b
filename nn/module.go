package nn

import (
	"fmt"
	"strings"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Module defines a single layer/unit in the network.
//
// Forward and Backward must not keep per-call state on the module: the same
// stage may be evaluated by several goroutines at once.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// Backward takes the input x that was given to Forward and the gradient of
	// the loss with respect to the module's output. It returns the gradient
	// with respect to x and the gradients of the module's parameters, in the
	// same order as Params.
	Backward(x, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error)
	// Params exposes the trainable tensors; optimizers update them in place.
	Params() []*tensor.Tensor
	// Clone returns a copy that shares no weight storage with the receiver.
	Clone() Module
	OutputShape(in []int) ([]int, error)
	Tag() string
}

// Stochastic is implemented by stages whose training-time behaviour is a
// random element-wise mask over their output (dropout).
type Stochastic interface {
	Mask(shape []int, rng Rand) *tensor.Tensor
}

// Rand is the subset of *math/rand.Rand used by the package.
type Rand interface {
	Float64() float64
	Perm(n int) []int
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
	// InputShape is the shape of a single example; nil when unknown.
	InputShape []int
}

// NewSequential builds a model for examples of the given input shape.
func NewSequential(inputShape []int, layers ...Module) *Sequential {
	return &Sequential{
		Layers:     layers,
		InputShape: append([]int(nil), inputShape...),
	}
}

// Len returns the number of stages.
func (s *Sequential) Len() int { return len(s.Layers) }

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	for i, layer := range s.Layers {
		var err error
		out, err = layer.Forward(out)
		if err != nil {
			return nil, errors.WithMessagef(err, "stage %d (%s)", i, layer.Tag())
		}
	}
	return out, nil
}

// Trace runs Forward and returns the input of every stage followed by the
// final output, so len(result) == Len()+1.
func (s *Sequential) Trace(x *tensor.Tensor) ([]*tensor.Tensor, error) {
	acts := make([]*tensor.Tensor, 0, len(s.Layers)+1)
	acts = append(acts, x)
	out := x
	for i, layer := range s.Layers {
		var err error
		out, err = layer.Forward(out)
		if err != nil {
			return nil, errors.WithMessagef(err, "stage %d (%s)", i, layer.Tag())
		}
		acts = append(acts, out)
	}
	return acts, nil
}

// Backward applies Backward in reverse order. Parameter gradients are
// returned in the same order as Params.
func (s *Sequential) Backward(x, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	acts, err := s.Trace(x)
	if err != nil {
		return nil, nil, err
	}
	return s.backwardFrom(acts, gradOut)
}

func (s *Sequential) backwardFrom(acts []*tensor.Tensor, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	perLayer := make([][]*tensor.Tensor, len(s.Layers))
	g := gradOut
	for i := len(s.Layers) - 1; i >= 0; i-- {
		var grads []*tensor.Tensor
		var err error
		g, grads, err = s.Layers[i].Backward(acts[i], g)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "backward stage %d (%s)", i, s.Layers[i].Tag())
		}
		perLayer[i] = grads
	}
	var all []*tensor.Tensor
	for _, grads := range perLayer {
		all = append(all, grads...)
	}
	return g, all, nil
}

// Params concatenates the parameters of all stages in order.
func (s *Sequential) Params() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, layer := range s.Layers {
		params = append(params, layer.Params()...)
	}
	return params
}

// Clone deep-copies every stage.
func (s *Sequential) Clone() Module {
	return s.CloneSequential()
}

// CloneSequential is Clone with the concrete type.
func (s *Sequential) CloneSequential() *Sequential {
	layers := make([]Module, len(s.Layers))
	for i, layer := range s.Layers {
		layers[i] = layer.Clone()
	}
	return &Sequential{Layers: layers, InputShape: append([]int(nil), s.InputShape...)}
}

// OutputShape chains OutputShape through the stages.
func (s *Sequential) OutputShape(in []int) ([]int, error) {
	shape := in
	for i, layer := range s.Layers {
		var err error
		shape, err = layer.OutputShape(shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "stage %d (%s)", i, layer.Tag())
		}
	}
	return shape, nil
}

// Validate checks that every stage accepts the previous stage's output.
func (s *Sequential) Validate() error {
	if s.InputShape == nil {
		return errors.New("sequential model has no input shape")
	}
	_, err := s.OutputShape(s.InputShape)
	return err
}

// CheckInput returns tensor.ErrShapeMismatch if x does not match InputShape.
func (s *Sequential) CheckInput(x *tensor.Tensor) error {
	if s.InputShape == nil {
		return nil
	}
	return errors.WithMessage(x.CheckShape(s.InputShape), "model input")
}

// Predict runs inference over a batch of examples.
func (s *Sequential) Predict(batch []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(batch))
	for i, x := range batch {
		if err := s.CheckInput(x); err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		y, err := s.Forward(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		out[i] = y
	}
	return out, nil
}

// Tag lists the stage tags.
func (s *Sequential) Tag() string {
	tags := make([]string, len(s.Layers))
	for i, layer := range s.Layers {
		tags[i] = layer.Tag()
	}
	return fmt.Sprintf("Sequential[%s]", strings.Join(tags, ","))
}
