package layers

import (
	"math/rand"
	"testing"

	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func randTensor(rng *rand.Rand, shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = rng.Float64()*2 - 1
	}
	return t
}

// checkGradients compares Backward against central finite differences of
// the scalar L = <r, m(x)> for a fixed random r.
func checkGradients(t *testing.T, m nn.Module, x *tensor.Tensor, tol float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	out, err := m.Forward(x)
	require.NoError(t, err)
	r := randTensor(rng, out.Shape...)

	loss := func() float64 {
		y, err := m.Forward(x)
		require.NoError(t, err)
		require.Equal(t, len(r.Data), len(y.Data))
		return floats.Dot(y.Data, r.Data)
	}

	gradIn, paramGrads, err := m.Backward(x, r)
	require.NoError(t, err)
	require.Equal(t, x.Shape, gradIn.Shape)
	require.Len(t, paramGrads, len(m.Params()))

	const h = 1e-5
	numeric := func(data []float64, i int) float64 {
		orig := data[i]
		data[i] = orig + h
		up := loss()
		data[i] = orig - h
		down := loss()
		data[i] = orig
		return (up - down) / (2 * h)
	}
	for i := range x.Data {
		require.InDelta(t, numeric(x.Data, i), gradIn.Data[i], tol, "input grad %d", i)
	}
	for p, param := range m.Params() {
		for i := range param.Data {
			require.InDelta(t, numeric(param.Data, i), paramGrads[p].Data[i], tol, "param %d grad %d", p, i)
		}
	}
}
