package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"tcav_lib/concept"
	"tcav_lib/models"
	"tcav_lib/nn"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// WeightsVersion is written into every weights file.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for a layer
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model. Layers are keyed by
// "<stage index>:<stage tag>" and only stages with parameters appear.
type ModelWeights struct {
	Version      string                 `json:"version"`
	Architecture *models.Config         `json:"architecture,omitempty"`
	Layers       map[string]LayerWeight `json:"layers"`
}

// LayerWeight contains weights and bias for a layer
type LayerWeight struct {
	Weight *WeightData `json:"weight,omitempty"`
	Bias   *WeightData `json:"bias,omitempty"`
}

func layerKey(i int, m nn.Module) string {
	return fmt.Sprintf("%d:%s", i, m.Tag())
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	return errors.Wrapf(os.WriteFile(filepath, data, 0644), "failed to write weights file: %s", filepath)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights file")
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal weights")
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}

// ExtractWeights copies every parameterised stage of model.
func ExtractWeights(model *nn.Sequential) *ModelWeights {
	w := &ModelWeights{Version: WeightsVersion, Layers: map[string]LayerWeight{}}
	for i, m := range model.Layers {
		params := m.Params()
		if len(params) == 0 {
			continue
		}
		key := layerKey(i, m)
		lw := LayerWeight{Weight: TensorToWeightData(key+"_weight", params[0])}
		if len(params) > 1 && params[1] != nil {
			lw.Bias = TensorToWeightData(key+"_bias", params[1])
		}
		w.Layers[key] = lw
	}
	return w
}

// loadInto replaces dst's contents with wd after checking the shapes agree.
func loadInto(dst *tensor.Tensor, wd *WeightData, what string) error {
	if wd == nil {
		return errors.Errorf("%s missing", what)
	}
	if !tensor.SameShape(dst.Shape, wd.Shape) || len(wd.Data) != len(dst.Data) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s: stored %v (%d values), model %v", what, wd.Shape, len(wd.Data), dst.Shape)
	}
	*dst = *WeightDataToTensor(wd)
	return nil
}

// ApplyWeights loads w into model in place. Every parameterised stage must
// be present with matching shapes, and w must not name unknown stages.
func ApplyWeights(model *nn.Sequential, w *ModelWeights) error {
	used := 0
	for i, m := range model.Layers {
		params := m.Params()
		if len(params) == 0 {
			continue
		}
		key := layerKey(i, m)
		lw, ok := w.Layers[key]
		if !ok {
			return errors.Errorf("no weights for stage %s", key)
		}
		used++
		if err := loadInto(params[0], lw.Weight, key+" weight"); err != nil {
			return err
		}
		if len(params) > 1 && params[1] != nil {
			if err := loadInto(params[1], lw.Bias, key+" bias"); err != nil {
				return err
			}
		}
	}
	if used != len(w.Layers) {
		return errors.Errorf("weights name %d stages, model has %d parameterised stages", len(w.Layers), used)
	}
	return nil
}

// SaveModel writes model's weights together with the architecture that
// rebuilds it.
func SaveModel(path string, arch models.Config, model *nn.Sequential) error {
	w := ExtractWeights(model)
	w.Architecture = &arch
	return SaveWeights(path, w)
}

// LoadModel rebuilds the stored architecture and loads its weights.
func LoadModel(path string) (*nn.Sequential, models.Config, error) {
	w, err := LoadWeights(path)
	if err != nil {
		return nil, models.Config{}, err
	}
	if w.Architecture == nil {
		return nil, models.Config{}, errors.Errorf("%s has no architecture", path)
	}
	model, err := models.Build(*w.Architecture, 0)
	if err != nil {
		return nil, models.Config{}, errors.WithMessagef(err, "rebuilding %s", path)
	}
	if err := ApplyWeights(model, w); err != nil {
		return nil, models.Config{}, errors.WithMessagef(err, "loading %s", path)
	}
	return model, *w.Architecture, nil
}

// SaveCAV writes cav as JSON.
func SaveCAV(path string, cav *concept.CAV) error {
	if cav == nil {
		return errors.New("cav required")
	}
	data, err := json.MarshalIndent(cav, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal cav")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "failed to write cav file: %s", path)
}

func LoadCAV(path string) (*concept.CAV, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cav file")
	}
	var cav concept.CAV
	if err := json.Unmarshal(data, &cav); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal cav")
	}
	if len(cav.Vector) == 0 {
		return nil, errors.Errorf("%s holds an empty cav", path)
	}
	return &cav, nil
}
