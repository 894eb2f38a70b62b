package layers

import (
	"math/rand"
	"testing"

	"tcav_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten_Plain(t *testing.T) {
	f := NewFlatten()
	input := tensor.New(2, 3)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}
	flat, err := f.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, flat.Shape)

	flat.Data[0] = 42
	assert.Equal(t, 0.0, input.Data[0], "flatten must not alias its input")

	g, _, err := f.Backward(input, flat)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, g.Shape)
}

func TestActivation_Values(t *testing.T) {
	x := tensor.NewWithData([]float64{-2, 0, 3})

	y, err := ReLU().Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 3}, y.Data)

	y, err = Sigmoid().Forward(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, y.Data[1], 1e-12)

	_, err = NewActivation("swish")
	assert.Error(t, err)

	a, err := NewActivation("ReLU")
	require.NoError(t, err)
	assert.Equal(t, "Activation_relu", a.Tag())
}

func TestActivation_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	for _, a := range []*Activation{Sigmoid(), Tanh()} {
		checkGradients(t, a, randTensor(rng, 3, 2), 1e-6)
	}
	// keep relu inputs away from the kink
	x := tensor.NewWithData([]float64{-1, -0.5, 0.5, 1})
	checkGradients(t, ReLU(), x, 1e-6)
}

func TestDropout_InferenceIsIdentity(t *testing.T) {
	d, err := NewDropout(0.5)
	require.NoError(t, err)
	x := tensor.NewWithData([]float64{1, 2, 3})
	y, err := d.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.Data, y.Data)

	_, err = NewDropout(1)
	assert.Error(t, err)
}

func TestDropout_Mask(t *testing.T) {
	d, err := NewDropout(0.25)
	require.NoError(t, err)
	mask := d.Mask([]int{1000}, rand.New(rand.NewSource(8)))
	kept := 0
	for _, v := range mask.Data {
		if v != 0 {
			assert.InDelta(t, 1/0.75, v, 1e-12)
			kept++
		}
	}
	assert.InDelta(t, 750, kept, 60)
}
