package layers

import (
	"errors"
	"math/rand"
	"testing"

	"tcav_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolInput() *tensor.Tensor {
	x := tensor.New(1, 4, 4)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	return x
}

func TestAvgPool2D_Forward(t *testing.T) {
	out, err := NewAvgPool2D(2).Forward(poolInput())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, out.Shape)
	assert.Equal(t, []float64{2.5, 4.5, 10.5, 12.5}, out.Data)
}

func TestMaxPool2D_Forward(t *testing.T) {
	out, err := NewMaxPool2D(2).Forward(poolInput())
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 13, 15}, out.Data)
}

func TestPool_DropsRemainder(t *testing.T) {
	shape, err := NewMaxPool2D(2).OutputShape([]int{3, 5, 7})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 3}, shape)

	_, err = NewAvgPool2D(2).Forward(tensor.New(4, 4))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestMaxPool2D_BackwardRoutesToWinner(t *testing.T) {
	x := poolInput()
	g, params, err := NewMaxPool2D(2).Backward(x, tensor.NewWithData([]float64{1, 2, 3, 4}))
	require.NoError(t, err)
	assert.Nil(t, params)
	want := make([]float64, 16)
	want[5], want[7], want[13], want[15] = 1, 2, 3, 4
	assert.Equal(t, want, g.Data)
}

func TestPool_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	checkGradients(t, NewAvgPool2D(2), randTensor(rng, 2, 4, 6), 1e-6)
	checkGradients(t, NewMaxPool2D(2), randTensor(rng, 2, 4, 6), 1e-6)
}
