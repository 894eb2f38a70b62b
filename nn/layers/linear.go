package layers

import (
	"fmt"
	"math/rand"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Linear is a fully-connected layer y = W·x (+ B).
type Linear struct {
	W *tensor.Tensor // [outDim, inDim]
	B *tensor.Tensor // [outDim], nil when the layer has no bias
	// Init names the kernel initialiser used by InitWeights.
	Init string
}

// NewLinear returns a zero-initialised layer mapping inDim→outDim.
func NewLinear(inDim, outDim int, bias bool) *Linear {
	l := &Linear{W: tensor.New(outDim, inDim)}
	if bias {
		l.B = tensor.New(outDim)
	}
	return l
}

func (l *Linear) InDim() int  { return l.W.Shape[1] }
func (l *Linear) OutDim() int { return l.W.Shape[0] }

// InitWeights draws W from the Init distribution (Glorot-uniform by
// default, matching Keras Dense) and zeroes B.
func (l *Linear) InitWeights(rng *rand.Rand) {
	initKernel(l.Init, l.W, l.InDim(), l.OutDim(), rng)
	if l.B != nil {
		for i := range l.B.Data {
			l.B.Data[i] = 0
		}
	}
}

func (l *Linear) check(x *tensor.Tensor) error {
	if len(x.Data) != l.InDim() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s got input %v", l.Tag(), x.Shape)
	}
	return nil
}

// Forward accepts any input holding InDim values and returns a [outDim] vector.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := l.check(x); err != nil {
		return nil, err
	}
	w := mat.NewDense(l.OutDim(), l.InDim(), l.W.Data)
	y := tensor.New(l.OutDim())
	yv := mat.NewVecDense(l.OutDim(), y.Data)
	yv.MulVec(w, mat.NewVecDense(l.InDim(), x.Data))
	if l.B != nil {
		yv.AddVec(yv, mat.NewVecDense(l.OutDim(), l.B.Data))
	}
	return y, nil
}

// Backward returns W^T·g shaped like x, plus dW = g⊗x and dB = g.
func (l *Linear) Backward(x, gradOut *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
	if err := l.check(x); err != nil {
		return nil, nil, err
	}
	if len(gradOut.Data) != l.OutDim() {
		return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s got gradient %v", l.Tag(), gradOut.Shape)
	}
	inDim, outDim := l.InDim(), l.OutDim()
	g := mat.NewVecDense(outDim, gradOut.Data)
	xv := mat.NewVecDense(inDim, x.Data)

	gradIn := tensor.New(x.Shape...)
	gi := mat.NewVecDense(inDim, gradIn.Data)
	gi.MulVec(mat.NewDense(outDim, inDim, l.W.Data).T(), g)

	gradW := tensor.New(outDim, inDim)
	mat.NewDense(outDim, inDim, gradW.Data).Outer(1, g, xv)

	grads := []*tensor.Tensor{gradW}
	if l.B != nil {
		grads = append(grads, gradOut.Clone().Flat())
	}
	return gradIn, grads, nil
}

func (l *Linear) Params() []*tensor.Tensor {
	if l.B == nil {
		return []*tensor.Tensor{l.W}
	}
	return []*tensor.Tensor{l.W, l.B}
}

func (l *Linear) Clone() nn.Module {
	return &Linear{W: l.W.Clone(), B: l.B.Clone(), Init: l.Init}
}

func (l *Linear) OutputShape(in []int) ([]int, error) {
	if tensor.Size(in) != l.InDim() {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s cannot take %v", l.Tag(), in)
	}
	return []int{l.OutDim()}, nil
}

func (l *Linear) Tag() string {
	if l.B == nil {
		return fmt.Sprintf("Linear_%d_%d_nobias", l.InDim(), l.OutDim())
	}
	return fmt.Sprintf("Linear_%d_%d", l.InDim(), l.OutDim())
}
