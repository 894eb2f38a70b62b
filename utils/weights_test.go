package utils

import (
	"os"
	"path/filepath"
	"testing"

	"tcav_lib/concept"
	"tcav_lib/models"
	"tcav_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorToWeightData(t *testing.T) {
	ten := tensor.New(2, 3)
	for i := range ten.Data {
		ten.Data[i] = float64(i) * 0.5
	}

	wd := TensorToWeightData("test_weight", ten)
	assert.Equal(t, "test_weight", wd.Name)
	assert.Equal(t, []int{2, 3}, wd.Shape)
	assert.Equal(t, ten.Data, wd.Data)

	ten.Data[0] = 42
	assert.Equal(t, 0.0, wd.Data[0], "weight data must be a copy")

	back := WeightDataToTensor(wd)
	assert.Equal(t, wd.Shape, back.Shape)
	assert.Equal(t, wd.Data, back.Data)
}

func TestSaveLoadWeights(t *testing.T) {
	weightsFile := filepath.Join(t.TempDir(), "test_weights.json")

	weights := &ModelWeights{
		Version: WeightsVersion,
		Layers: map[string]LayerWeight{
			"0:Linear_4_3": {
				Weight: &WeightData{Name: "w", Shape: []int{3, 4}, Data: make([]float64, 12)},
				Bias:   &WeightData{Name: "b", Shape: []int{3}, Data: []float64{0.1, 0.2, 0.3}},
			},
		},
	}
	weights.Layers["0:Linear_4_3"].Weight.Data[1] = 0.001

	require.NoError(t, SaveWeights(weightsFile, weights))
	loaded, err := LoadWeights(weightsFile)
	require.NoError(t, err)
	assert.Equal(t, weights, loaded)
}

func TestLoadWeightsErrors(t *testing.T) {
	_, err := LoadWeights("/nonexistent/path/weights.json")
	assert.Error(t, err)

	badFile := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(badFile, []byte("not valid json"), 0644))
	_, err = LoadWeights(badFile)
	assert.Error(t, err)
}

func smallArch() models.Config {
	cfg := models.DefaultCNN()
	cfg.InputShape = []int{3, 8, 8}
	cfg.Filters = []int{2}
	cfg.Hidden = []int{4}
	return cfg
}

func TestSaveLoadModel(t *testing.T) {
	arch := smallArch()
	model, err := models.Build(arch, 5)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, SaveModel(path, arch, model))

	loaded, gotArch, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, arch, gotArch)
	require.Equal(t, model.Len(), loaded.Len())

	want, got := model.Params(), loaded.Params()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Data, got[i].Data, "param %d", i)
	}

	x := tensor.New(3, 8, 8)
	for i := range x.Data {
		x.Data[i] = float64(i%5) / 5
	}
	y1, err := model.Forward(x)
	require.NoError(t, err)
	y2, err := loaded.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, y1.Data, y2.Data)
}

func TestApplyWeightsMismatch(t *testing.T) {
	arch := smallArch()
	model, err := models.Build(arch, 5)
	require.NoError(t, err)
	w := ExtractWeights(model)

	other := arch
	other.Hidden = []int{6}
	wider, err := models.Build(other, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, ApplyWeights(wider, w), tensor.ErrShapeMismatch)

	for k := range w.Layers {
		delete(w.Layers, k)
		break
	}
	assert.Error(t, ApplyWeights(model, w))

	extra := ExtractWeights(model)
	extra.Layers["99:Linear_1_1"] = LayerWeight{}
	assert.Error(t, ApplyWeights(model, extra))
}

func TestLoadModelWithoutArchitecture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, SaveWeights(path, &ModelWeights{Version: WeightsVersion}))
	_, _, err := LoadModel(path)
	assert.ErrorContains(t, err, "no architecture")
}

func TestSaveLoadCAV(t *testing.T) {
	dir := t.TempDir()
	cav := &concept.CAV{Concept: "sea", Layer: 12, Vector: []float64{0.5, -1.25, 3}, Accuracy: 0.9}

	path := filepath.Join(dir, "sea.json")
	require.NoError(t, SaveCAV(path, cav))
	got, err := LoadCAV(path)
	require.NoError(t, err)
	assert.Equal(t, cav, got)

	assert.Error(t, SaveCAV(path, nil))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"concept":"sea"}`), 0644))
	_, err = LoadCAV(empty)
	assert.Error(t, err)
}
