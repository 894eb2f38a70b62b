package split

import (
	"errors"
	"math/rand"
	"testing"

	"tcav_lib/nn"
	"tcav_lib/nn/layers"
	"tcav_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallCNN(t *testing.T) *nn.Sequential {
	t.Helper()
	conv, err := layers.NewConv2D(1, 2, 3, 3, layers.PaddingSame)
	require.NoError(t, err)
	drop, err := layers.NewDropout(0.5)
	require.NoError(t, err)
	dense := layers.NewLinear(2*3*3, 3, true)
	layers.InitAll(11, conv, dense)
	model := nn.NewSequential([]int{1, 6, 6},
		conv, layers.ReLU(), layers.NewMaxPool2D(2), drop, layers.NewFlatten(), dense, layers.Sigmoid())
	require.NoError(t, model.Validate())
	return model
}

func randomImage(seed int64) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.New(1, 6, 6)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	return x
}

func TestSplitAllValidIndices(t *testing.T) {
	model := smallCNN(t)
	x := randomImage(1)
	want, err := model.Forward(x)
	require.NoError(t, err)

	for L := 0; L < model.Len()-1; L++ {
		f, h, err := Split(model, L)
		require.NoError(t, err, "layer %d", L)
		assert.Equal(t, L+1, f.Len())
		assert.Equal(t, model.Len(), f.Len()+h.Len())
		assert.Equal(t, model.InputShape, f.InputShape)

		feat, err := f.Forward(x)
		require.NoError(t, err)
		assert.Equal(t, h.InputShape, feat.Shape)
		got, err := h.Forward(feat)
		require.NoError(t, err)
		assert.True(t, tensor.Equal(want, got), "layer %d: composed inference differs", L)
	}
}

func TestSplitInvalidIndex(t *testing.T) {
	model := smallCNN(t)
	for _, L := range []int{-1, model.Len() - 1, model.Len(), 100} {
		_, _, err := Split(model, L)
		assert.True(t, errors.Is(err, ErrInvalidLayerIndex), "layer %d", L)
	}
	_, _, err := Split(nn.NewSequential([]int{2}, layers.NewLinear(2, 2, true)), 0)
	assert.True(t, errors.Is(err, ErrInvalidLayerIndex), "single-stage model cannot be split")

	_, _, err = Split(nil, 0)
	assert.True(t, errors.Is(err, ErrInvalidLayerIndex))
}

func TestSplitOwnsWeights(t *testing.T) {
	model := smallCNN(t)
	orig := model.Params()[0].Data[0]

	f, h, err := Split(model, 2)
	require.NoError(t, err)
	f.Params()[0].Data[0] += 1
	h.Params()[0].Data[0] += 1

	assert.Equal(t, orig, model.Params()[0].Data[0])
	assert.NotEqual(t, model.Params()[2].Data[0], h.Params()[0].Data[0])
}

func TestJoinRoundTrip(t *testing.T) {
	model := smallCNN(t)
	x := randomImage(2)
	want, err := model.Forward(x)
	require.NoError(t, err)

	for L := 0; L < model.Len()-1; L++ {
		f, h, err := Split(model, L)
		require.NoError(t, err)
		joined := Join(f, h)
		assert.Equal(t, model.Tag(), joined.Tag())
		assert.Equal(t, model.InputShape, joined.InputShape)
		got, err := joined.Forward(x)
		require.NoError(t, err)
		assert.True(t, tensor.Equal(want, got))
	}
}

func TestFeatureShape(t *testing.T) {
	model := smallCNN(t)
	shape, err := FeatureShape(model, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 3}, shape)

	shape, err = FeatureShape(model, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{18}, shape)

	_, err = FeatureShape(model, model.Len()-1)
	assert.True(t, errors.Is(err, ErrInvalidLayerIndex))
}
