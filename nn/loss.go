package nn

import (
	"math"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Loss scores a single output against its target.
type Loss interface {
	Loss(out, target *tensor.Tensor) (float64, error)
	// Backward returns d(loss)/d(out).
	Backward(out, target *tensor.Tensor) (*tensor.Tensor, error)
}

// epsilon clips probabilities away from 0 and 1, as Keras does.
const epsilon = 1e-7

func checkPair(out, target *tensor.Tensor) error {
	if len(out.Data) != len(target.Data) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "output %v vs target %v", out.Shape, target.Shape)
	}
	return nil
}

func clip(p float64) float64 {
	return math.Min(math.Max(p, epsilon), 1-epsilon)
}

// BinaryCrossEntropy is the mean over units of -t*log(p) - (1-t)*log(1-p),
// for outputs that are already probabilities (sigmoid).
type BinaryCrossEntropy struct{}

func (BinaryCrossEntropy) Loss(out, target *tensor.Tensor) (float64, error) {
	if err := checkPair(out, target); err != nil {
		return 0, err
	}
	sum := 0.0
	for i, v := range out.Data {
		p := clip(v)
		t := target.Data[i]
		sum += -t*math.Log(p) - (1-t)*math.Log(1-p)
	}
	return sum / float64(len(out.Data)), nil
}

func (BinaryCrossEntropy) Backward(out, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkPair(out, target); err != nil {
		return nil, err
	}
	n := float64(len(out.Data))
	grad := tensor.New(out.Shape...)
	for i, v := range out.Data {
		p := clip(v)
		t := target.Data[i]
		grad.Data[i] = (p - t) / (p * (1 - p)) / n
	}
	return grad, nil
}

// CategoricalCrossEntropy scores probability outputs against a one-hot
// target the way Keras does: outputs are rescaled to sum to 1 and clipped
// before -sum(t*log(q)). It accepts sigmoid outputs, which need not sum to 1.
type CategoricalCrossEntropy struct{}

func normalize(out *tensor.Tensor) (q []float64, sum float64) {
	sum = floats.Sum(out.Data)
	if sum < epsilon {
		sum = epsilon
	}
	q = make([]float64, len(out.Data))
	floats.ScaleTo(q, 1/sum, out.Data)
	return q, sum
}

func (CategoricalCrossEntropy) Loss(out, target *tensor.Tensor) (float64, error) {
	if err := checkPair(out, target); err != nil {
		return 0, err
	}
	q, _ := normalize(out)
	loss := 0.0
	for i, t := range target.Data {
		loss -= t * math.Log(clip(q[i]))
	}
	return loss, nil
}

// Backward differentiates through the rescaling. Clipped entries pass no
// gradient.
func (CategoricalCrossEntropy) Backward(out, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkPair(out, target); err != nil {
		return nil, err
	}
	q, sum := normalize(out)
	live := 0.0
	for i, t := range target.Data {
		if q[i] == clip(q[i]) {
			live += t
		}
	}
	grad := tensor.New(out.Shape...)
	for j, t := range target.Data {
		g := live
		if q[j] == clip(q[j]) {
			g -= t / q[j]
		}
		grad.Data[j] = g / sum
	}
	return grad, nil
}

// SoftmaxCrossEntropy applies softmax to logits and scores them against a
// one-hot target.
type SoftmaxCrossEntropy struct{}

func (SoftmaxCrossEntropy) Loss(out, target *tensor.Tensor) (float64, error) {
	if err := checkPair(out, target); err != nil {
		return 0, err
	}
	sm := Softmax(out)
	sum := 0.0
	for i, t := range target.Data {
		sum -= t * math.Log(clip(sm.Data[i]))
	}
	return sum, nil
}

// Backward computes the gradient of the cross-entropy loss with softmax.
// grad = (softmax_output - one_hot_label)
func (SoftmaxCrossEntropy) Backward(out, target *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkPair(out, target); err != nil {
		return nil, err
	}
	sm := Softmax(out)
	grad := tensor.New(out.Shape...)
	for i := range grad.Data {
		grad.Data[i] = sm.Data[i] - target.Data[i]
	}
	return grad, nil
}

// Softmax applies the softmax function to a tensor.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	softmax := tensor.New(logits.Shape...)
	if len(logits.Data) == 0 {
		return softmax
	}
	maxLogit := logits.Data[0]
	for _, v := range logits.Data {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	for i, v := range logits.Data {
		e := math.Exp(v - maxLogit)
		softmax.Data[i] = e
		expSum += e
	}
	for i := range softmax.Data {
		softmax.Data[i] /= expSum
	}
	return softmax
}
