package tcav

import (
	"tcav_lib/concept"
	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Sensitivity returns the directional derivative of target(h(f(example)))
// along cav, taken at f(example).
func Sensitivity(example *tensor.Tensor, f, h *nn.Sequential, cav *concept.CAV, target nn.Target) (float64, error) {
	e := NewEvaluator(f, h, NewPlainProjector(cav))
	e.Target = target
	return e.Sensitivity(example)
}

// Evaluator holds the split model and projector reused across examples.
// It is safe for concurrent use as long as its fields are not modified.
type Evaluator struct {
	F, H      *nn.Sequential
	Projector Projector
	// Target reduces the head output before differentiation; nil means sum.
	Target nn.Target
}

func NewEvaluator(f, h *nn.Sequential, p Projector) *Evaluator {
	return &Evaluator{F: f, H: h, Projector: p, Target: nn.SumOutputs}
}

// Check verifies that the projector's dimension matches the head's input,
// when the head's input shape is known.
func (e *Evaluator) Check() error {
	if e.H.InputShape == nil {
		return nil
	}
	if d := tensor.Size(e.H.InputShape); d != e.Projector.Dim() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "cav has %d dims, head input %v has %d", e.Projector.Dim(), e.H.InputShape, d)
	}
	return nil
}

// Gradient returns d target(h(a)) / da at a = f(example), shaped like a.
func (e *Evaluator) Gradient(example *tensor.Tensor, target nn.Target) (*tensor.Tensor, error) {
	if err := e.F.CheckInput(example); err != nil {
		return nil, err
	}
	feature, err := e.F.Forward(example)
	if err != nil {
		return nil, errors.WithMessage(err, "feature extractor")
	}
	grad, err := nn.InputGradient(e.H, feature, target)
	if err != nil {
		return nil, errors.WithMessage(err, "head gradient")
	}
	return grad, nil
}

// Sensitivity uses e.Target.
func (e *Evaluator) Sensitivity(example *tensor.Tensor) (float64, error) {
	return e.SensitivityFor(example, e.Target)
}

// SensitivityFor uses the given target instead of e.Target.
func (e *Evaluator) SensitivityFor(example *tensor.Tensor, target nn.Target) (float64, error) {
	grad, err := e.Gradient(example, target)
	if err != nil {
		return 0, err
	}
	return e.Projector.Project(grad.Data)
}
