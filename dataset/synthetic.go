package dataset

import (
	"math/rand"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Separable draws n points of dimension dim with Gaussian noise of the given
// standard deviation, alternating labels lo and hi. Coordinate 0 is shifted
// by +margin for hi and -margin for lo, so the two labels are linearly
// separable along it.
func Separable(n, dim int, margin, noise float64, lo, hi int, seed int64) (*Dataset, error) {
	if n <= 0 || dim <= 0 {
		return nil, errors.Errorf("separable set needs positive size, got n=%d dim=%d", n, dim)
	}
	rng := rand.New(rand.NewSource(seed))
	out := &Dataset{}
	for i := 0; i < n; i++ {
		x := tensor.New(dim)
		for j := range x.Data {
			x.Data[j] = noise * rng.NormFloat64()
		}
		label := lo
		if i%2 == 0 {
			label = hi
			x.Data[0] += margin
		} else {
			x.Data[0] -= margin
		}
		out.Examples = append(out.Examples, x)
		out.Labels = append(out.Labels, label)
	}
	return out, nil
}

// Blobs draws perLabel points for each label from a uniform box around a
// random centre in [-spread, spread]^shape, returning examples of the given
// shape.
func Blobs(labels []int, perLabel int, shape []int, spread, radius float64, seed int64) (*Dataset, error) {
	if len(labels) == 0 || perLabel <= 0 || tensor.Size(shape) <= 0 {
		return nil, errors.New("blobs need labels, a positive count and a non-empty shape")
	}
	rng := rand.New(rand.NewSource(seed))
	size := tensor.Size(shape)
	centre := distuv.Uniform{Min: -spread, Max: spread}
	jitter := distuv.Uniform{Min: -radius, Max: radius}

	out := &Dataset{}
	for _, label := range labels {
		c := make([]float64, size)
		for j := range c {
			c[j] = centre.Quantile(rng.Float64())
		}
		for k := 0; k < perLabel; k++ {
			x := tensor.New(shape...)
			for j := range x.Data {
				x.Data[j] = c[j] + jitter.Quantile(rng.Float64())
			}
			out.Examples = append(out.Examples, x)
			out.Labels = append(out.Labels, label)
		}
	}
	return out, nil
}
