package models

import (
	"math"
	"testing"

	"tcav_lib/nn"
	"tcav_lib/nn/layers"
	"tcav_lib/split"
	"tcav_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestDefaultCNNLayout(t *testing.T) {
	model, err := Build(DefaultCNN(), 1)
	require.NoError(t, err)
	require.Equal(t, 18, model.Len())

	_, ok := model.Layers[CIFARSplitLayer].(*layers.Flatten)
	assert.True(t, ok, "stage %d is %s", CIFARSplitLayer, model.Layers[CIFARSplitLayer].Tag())

	out, err := model.OutputShape(model.InputShape)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, out)

	feat, err := split.FeatureShape(model, CIFARSplitLayer)
	require.NoError(t, err)
	assert.Equal(t, []int{64 * 6 * 6}, feat)
}

func TestCNNForward(t *testing.T) {
	cfg := DefaultCNN()
	cfg.Filters = []int{4, 8}
	cfg.Hidden = []int{16}
	model, err := Build(cfg, 3)
	require.NoError(t, err)

	x := tensor.New(3, 32, 32)
	for i := range x.Data {
		x.Data[i] = float64(i%17) / 17
	}
	y, err := model.Forward(x)
	require.NoError(t, err)
	require.Len(t, y.Data, 2)
	for _, v := range y.Data {
		assert.True(t, v > 0 && v < 1, "sigmoid output %v", v)
	}
}

func TestBuildSeeded(t *testing.T) {
	cfg := DefaultMLP(6, 3)
	a, err := Build(cfg, 7)
	require.NoError(t, err)
	b, err := Build(cfg, 7)
	require.NoError(t, err)
	c, err := Build(cfg, 8)
	require.NoError(t, err)

	pa, pb, pc := a.Params(), b.Params(), c.Params()
	require.Len(t, pa, 4)
	assert.Equal(t, pa[0].Data, pb[0].Data)
	assert.NotEqual(t, pa[0].Data, pc[0].Data)
}

func TestMLPWithoutHidden(t *testing.T) {
	cfg := DefaultMLP(4, 2)
	cfg.Hidden = nil
	cfg.Output = "linear"
	model, err := Build(cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, model.Len())
	assert.IsType(t, nn.SoftmaxCrossEntropy{}, cfg.Loss())
	assert.IsType(t, nn.CategoricalCrossEntropy{}, DefaultMLP(4, 2).Loss())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown", func(c *Config) { c.Name = "resnet" }},
		{"flat cnn input", func(c *Config) { c.InputShape = []int{3072} }},
		{"no filters", func(c *Config) { c.Filters = nil }},
		{"zero outputs", func(c *Config) { c.Outputs = 0 }},
		{"bad width", func(c *Config) { c.Hidden = []int{0} }},
		{"bad activation", func(c *Config) { c.Output = "softplus" }},
		{"bad pooling", func(c *Config) { c.Pool = "median" }},
		{"bad initializer", func(c *Config) { c.Init = "zeros" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCNN()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := Build(cfg, 1)
			assert.Error(t, err)
		})
	}
	require.NoError(t, DefaultCNN().Validate())
}

func TestCNNInputTooSmall(t *testing.T) {
	cfg := DefaultCNN()
	cfg.InputShape = []int{3, 6, 6}
	_, err := Build(cfg, 1)
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	assert.Equal(t, "cnn[3x32x32 f32,64 h512 ->2]", DefaultCNN().String())
	assert.Equal(t, "mlp[6 h32 ->3]", DefaultMLP(6, 3).String())
}

func TestCNNAveragePooling(t *testing.T) {
	cfg := DefaultCNN()
	cfg.Pool = PoolAvg
	model, err := Build(cfg, 1)
	require.NoError(t, err)
	require.Equal(t, 18, model.Len())

	_, ok := model.Layers[4].(*layers.AvgPool2D)
	assert.True(t, ok, "stage 4 is %s", model.Layers[4].Tag())
	_, ok = model.Layers[10].(*layers.AvgPool2D)
	assert.True(t, ok, "stage 10 is %s", model.Layers[10].Tag())

	feat, err := split.FeatureShape(model, CIFARSplitLayer)
	require.NoError(t, err)
	assert.Equal(t, []int{64 * 6 * 6}, feat)
}

func TestHeNormalInit(t *testing.T) {
	cfg := DefaultMLP(200, 2)
	cfg.Hidden = []int{300}
	glorot, err := Build(cfg, 4)
	require.NoError(t, err)
	cfg.Init = layers.HeNormalInit
	he, err := Build(cfg, 4)
	require.NoError(t, err)

	w := he.Layers[0].(*layers.Linear)
	assert.Equal(t, layers.HeNormalInit, w.Init)
	assert.Equal(t, layers.HeNormalInit, w.Clone().(*layers.Linear).Init)

	// Glorot-uniform here is bounded by sqrt(6/500) ~ 0.11; He-normal has
	// standard deviation 0.1, so some draws exceed that bound.
	limit := math.Sqrt(6.0 / 500)
	for _, v := range glorot.Layers[0].(*layers.Linear).W.Data {
		require.LessOrEqual(t, math.Abs(v), limit)
	}
	assert.Greater(t, floats.Max(w.W.Data), limit)
	assert.InDelta(t, math.Sqrt(2.0/200), stat.StdDev(w.W.Data, nil), 0.005)
}
