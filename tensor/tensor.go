package tensor

import (

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned whenever two tensors (or a tensor and a model)
// disagree on shape or length.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a simple n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, Size(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// FromData wraps a copy of data with the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	if Size(shape) != len(data) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d values for shape %v", len(data), shape)
	}
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: append([]int(nil), shape...),
	}, nil
}

// Size is the number of elements held by a tensor of the given shape.
func Size(shape []int) int {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return total
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Reshape returns a view of t with a new shape; the data is shared.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if Size(shape) != len(t.Data) {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot reshape %v into %v", t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// Flat returns a 1-D view of t.
func (t *Tensor) Flat() *Tensor {
	return &Tensor{Data: t.Data, Shape: []int{len(t.Data)}}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckShape returns ErrShapeMismatch when t does not have the given shape.
func (t *Tensor) CheckShape(shape []int) error {
	if !SameShape(t.Shape, shape) {
		return errors.Wrapf(ErrShapeMismatch, "got %v, want %v", t.Shape, shape)
	}
	return nil
}

// AddInPlace accumulates b into a.
func AddInPlace(a, b *Tensor) error {
	if len(a.Data) != len(b.Data) {
		return errors.Wrapf(ErrShapeMismatch, "%v vs %v", a.Shape, b.Shape)
	}
	floats.Add(a.Data, b.Data)
	return nil
}

// Mul returns the element-wise product of a and b.
func Mul(a, b *Tensor) (*Tensor, error) {
	if len(a.Data) != len(b.Data) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%v vs %v", a.Shape, b.Shape)
	}
	out := a.Clone()
	floats.Mul(out.Data, b.Data)
	return out, nil
}

// Scale returns s*a.
func Scale(s float64, a *Tensor) *Tensor {
	out := a.Clone()
	floats.Scale(s, out.Data)
	return out
}

// Equal reports whether a and b have the same shape and bit-identical data.
func Equal(a, b *Tensor) bool {
	if !SameShape(a.Shape, b.Shape) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// Argmax returns the index of the largest element (first one on ties).
func (t *Tensor) Argmax() int {
	if len(t.Data) == 0 {
		return -1
	}
	return floats.MaxIdx(t.Data)
}
