package nn

import (
	"errors"
	"testing"

	"tcav_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputGradientTargets(t *testing.T) {
	seq := NewSequential([]int{2}, &scaleLayer{w: tensor.NewWithData([]float64{2, -3})})
	x := tensor.NewWithData([]float64{1, 1})

	g, err := InputGradient(seq, x, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -3}, g.Data, "nil target differentiates the sum")

	g, err = InputGradient(seq, x, MeanOutputs)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1.5}, g.Data)

	g, err = InputGradient(seq, x, OutputIndex(1))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -3}, g.Data)

	_, err = InputGradient(seq, x, OutputIndex(2))
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestInputGradientLeavesParamsUntouched(t *testing.T) {
	w := tensor.NewWithData([]float64{2, 3})
	seq := NewSequential([]int{2}, &scaleLayer{w: w})
	_, err := InputGradient(seq, tensor.NewWithData([]float64{4, 5}), SumOutputs)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, w.Data)
}

func TestInputGradientBareModule(t *testing.T) {
	g, err := InputGradient(&scaleLayer{w: tensor.NewWithData([]float64{4})}, tensor.NewWithData([]float64{1}), SumOutputs)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, g.Data)
}

func TestTargetNames(t *testing.T) {
	assert.Equal(t, "sum", SumOutputs.String())
	assert.Equal(t, "mean", MeanOutputs.String())
	assert.Equal(t, "output[3]", OutputIndex(3).String())
}
