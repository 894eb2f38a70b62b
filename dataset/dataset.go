// Package dataset holds labeled example sets: the class training set scored
// by TCAV and the two-label concept sets the probe is trained on.
package dataset

import (
	"math/rand"
	"sort"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// Dataset pairs examples with integer class labels.
type Dataset struct {
	Examples []*tensor.Tensor
	Labels   []int
}

// New checks that every example has a label.
func New(examples []*tensor.Tensor, labels []int) (*Dataset, error) {
	if len(examples) != len(labels) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%d examples for %d labels", len(examples), len(labels))
	}
	return &Dataset{Examples: examples, Labels: labels}, nil
}

func (d *Dataset) Len() int { return len(d.Examples) }

// Validate reports a length mismatch between examples and labels.
func (d *Dataset) Validate() error {
	_, err := New(d.Examples, d.Labels)
	return err
}

// DistinctLabels returns the labels present in ascending order.
func (d *Dataset) DistinctLabels() []int {
	seen := map[int]bool{}
	var out []int
	for _, l := range d.Labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

// Counts returns the number of examples per label.
func (d *Dataset) Counts() map[int]int {
	counts := map[int]int{}
	for _, l := range d.Labels {
		counts[l]++
	}
	return counts
}

// Filter keeps the examples whose label is one of labels, in order.
// Examples are shared with d.
func (d *Dataset) Filter(labels ...int) *Dataset {
	keep := map[int]bool{}
	for _, l := range labels {
		keep[l] = true
	}
	out := &Dataset{}
	for i, l := range d.Labels {
		if keep[l] {
			out.Examples = append(out.Examples, d.Examples[i])
			out.Labels = append(out.Labels, l)
		}
	}
	return out
}

// Remap returns a copy with labels translated through m; labels missing from
// m are kept as they are.
func (d *Dataset) Remap(m map[int]int) *Dataset {
	out := &Dataset{Examples: d.Examples, Labels: make([]int, len(d.Labels))}
	for i, l := range d.Labels {
		if to, ok := m[l]; ok {
			l = to
		}
		out.Labels[i] = l
	}
	return out
}

// ByLabel returns the examples carrying label.
func (d *Dataset) ByLabel(label int) []*tensor.Tensor {
	var out []*tensor.Tensor
	for i, l := range d.Labels {
		if l == label {
			out = append(out, d.Examples[i])
		}
	}
	return out
}

// OneHot encodes the labels over n classes.
func (d *Dataset) OneHot(n int) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(d.Labels))
	for i, l := range d.Labels {
		if l < 0 || l >= n {
			return nil, errors.Errorf("label %d of example %d outside [0,%d)", l, i, n)
		}
		out[i] = tensor.New(n)
		out[i].Data[l] = 1
	}
	return out, nil
}

// Shuffle returns a permuted copy; the same seed gives the same order.
func (d *Dataset) Shuffle(seed int64) *Dataset {
	perm := rand.New(rand.NewSource(seed)).Perm(len(d.Examples))
	out := &Dataset{Examples: make([]*tensor.Tensor, len(perm)), Labels: make([]int, len(perm))}
	for i, j := range perm {
		out.Examples[i] = d.Examples[j]
		out.Labels[i] = d.Labels[j]
	}
	return out
}

// Take returns the first n examples (all of them if n is larger or negative).
func (d *Dataset) Take(n int) *Dataset {
	if n < 0 || n > len(d.Examples) {
		n = len(d.Examples)
	}
	return &Dataset{Examples: d.Examples[:n:n], Labels: d.Labels[:n:n]}
}

// TakePerLabel keeps at most n examples of each label, in order.
func (d *Dataset) TakePerLabel(n int) *Dataset {
	counts := map[int]int{}
	out := &Dataset{}
	for i, l := range d.Labels {
		if counts[l] < n {
			counts[l]++
			out.Examples = append(out.Examples, d.Examples[i])
			out.Labels = append(out.Labels, l)
		}
	}
	return out
}

// Concat appends the examples of others after d's.
func Concat(sets ...*Dataset) *Dataset {
	out := &Dataset{}
	for _, s := range sets {
		out.Examples = append(out.Examples, s.Examples...)
		out.Labels = append(out.Labels, s.Labels...)
	}
	return out
}
