// Package split cuts a sequential model into a feature extractor and a head
// at a stage boundary, and puts the two halves back together.
package split

import (
	"log/slog"

	"tcav_lib/nn"

	"github.com/pkg/errors"
)

// ErrInvalidLayerIndex is returned when a split would leave either half empty.
var ErrInvalidLayerIndex = errors.New("invalid layer index")

// Split returns f holding clones of stages [0..layerIndex] and h holding
// clones of stages [layerIndex+1..]. model is not modified, and f, h and model
// share no weight storage.
func Split(model *nn.Sequential, layerIndex int) (f, h *nn.Sequential, err error) {
	if model == nil {
		return nil, nil, errors.Wrap(ErrInvalidLayerIndex, "nil model")
	}
	n := model.Len()
	if layerIndex < 0 || layerIndex >= n-1 {
		return nil, nil, errors.Wrapf(ErrInvalidLayerIndex, "layer %d of a %d-stage model (valid: 0..%d)", layerIndex, n, n-2)
	}

	cloned := model.CloneSequential()
	f = &nn.Sequential{
		Layers:     cloned.Layers[:layerIndex+1:layerIndex+1],
		InputShape: cloned.InputShape,
	}
	h = &nn.Sequential{Layers: cloned.Layers[layerIndex+1:]}
	if f.InputShape != nil {
		if h.InputShape, err = f.OutputShape(f.InputShape); err != nil {
			return nil, nil, errors.WithMessage(err, "feature extractor output shape")
		}
	}
	slog.Debug("split model", "layer", layerIndex, "extractor", f.Len(), "head", h.Len(), "feature_shape", h.InputShape)
	return f, h, nil
}

// Join composes f followed by h into a new model with its own weights.
func Join(f, h *nn.Sequential) *nn.Sequential {
	fc, hc := f.CloneSequential(), h.CloneSequential()
	layers := make([]nn.Module, 0, fc.Len()+hc.Len())
	layers = append(layers, fc.Layers...)
	layers = append(layers, hc.Layers...)
	return &nn.Sequential{Layers: layers, InputShape: fc.InputShape}
}

// FeatureShape returns the shape of f's output for model split at layerIndex.
func FeatureShape(model *nn.Sequential, layerIndex int) ([]int, error) {
	if model == nil || layerIndex < 0 || layerIndex >= model.Len()-1 {
		return nil, errors.Wrapf(ErrInvalidLayerIndex, "layer %d", layerIndex)
	}
	if model.InputShape == nil {
		return nil, errors.New("model has no input shape")
	}
	prefix := &nn.Sequential{Layers: model.Layers[:layerIndex+1]}
	return prefix.OutputShape(model.InputShape)
}
